package export

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/NayellyZurita/CRE-Market-Signals/internal/domain/models"
	"github.com/NayellyZurita/CRE-Market-Signals/internal/repository"
)

func seededStore(t *testing.T) *repository.MemorySignalStore {
	t.Helper()
	store := repository.NewMemorySignalStore()
	base := models.SignalInput{GeoLevel: "county", GeoID: "49-035", GeoName: "Salt Lake County, UT", Unit: "USD"}
	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var batch []models.MarketSignal
	for _, in := range []models.SignalInput{
		{Source: models.SourceHUD, Metric: "fmr_2br", Value: 1350, ObservedAt: jan, RawPayload: map[string]int{"fmr_2br": 1350}},
		{Source: models.SourceACS, Metric: "median_household_income", Value: "72000", ObservedAt: jan},
		{Source: models.SourceFRED, Metric: "unemp_rate", Value: 3.4, Unit: "%", ObservedAt: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)},
	} {
		in.GeoLevel, in.GeoID, in.GeoName = base.GeoLevel, base.GeoID, base.GeoName
		if in.Unit == "" {
			in.Unit = base.Unit
		}
		sig, err := models.NewMarketSignal(in)
		require.NoError(t, err)
		batch = append(batch, sig)
	}
	_, err := store.Upsert(context.Background(), batch)
	require.NoError(t, err)
	return store
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestExportCSV(t *testing.T) {
	exp := New(seededStore(t))
	dest := filepath.Join(t.TempDir(), "nested", "dir", "signals.csv")

	res, err := exp.Export(context.Background(), Request{
		Filter: models.SignalFilter{GeoID: "49-035", Limit: 10},
		Format: models.FormatCSV,
		Path:   dest,
	})
	require.NoError(t, err)
	assert.Equal(t, dest, res.Path)
	assert.Equal(t, 3, res.Rows)

	rows := readCSV(t, dest)
	require.Len(t, rows, 4)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, "fred", rows[3][0])
	assert.Equal(t, "2024-12-01T00:00:00Z", rows[3][4])
	assert.Equal(t, "3.4", rows[3][6])

	_, err = os.Stat(filepath.Join(filepath.Dir(dest), ".signals.csv.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestExportCSVZeroRows(t *testing.T) {
	exp := New(seededStore(t))
	dir := t.TempDir()

	withHeader := filepath.Join(dir, "header.csv")
	res, err := exp.Export(context.Background(), Request{
		Filter: models.SignalFilter{GeoID: "00-000"},
		Format: models.FormatCSV,
		Path:   withHeader,
	})
	require.NoError(t, err)
	assert.Zero(t, res.Rows)
	assert.Equal(t, [][]string{Columns}, readCSV(t, withHeader))

	bare := filepath.Join(dir, "bare.csv")
	_, err = exp.Export(context.Background(), Request{
		Filter:   models.SignalFilter{GeoID: "00-000"},
		Format:   models.FormatCSV,
		Path:     bare,
		NoHeader: true,
	})
	require.NoError(t, err)
	info, err := os.Stat(bare)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestExportParquet(t *testing.T) {
	exp := New(seededStore(t))
	dest := filepath.Join(t.TempDir(), "signals.parquet")

	res, err := exp.Export(context.Background(), Request{
		Filter: models.SignalFilter{GeoID: "49-035", Limit: 10},
		Format: models.FormatParquet,
		Path:   dest,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rows)

	fr, err := local.NewLocalFileReader(dest)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(ParquetRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	require.Equal(t, 3, n)
	rows := make([]ParquetRow, n)
	require.NoError(t, pr.Read(&rows))

	assert.Equal(t, models.SourceACS, rows[0].Source)
	assert.Equal(t, models.SourceHUD, rows[1].Source)
	assert.Equal(t, models.SourceFRED, rows[2].Source)
	assert.Equal(t, 3.4, rows[2].Value)

	assert.Nil(t, rows[0].RawPayload)
	require.NotNil(t, rows[1].RawPayload)
	assert.JSONEq(t, `{"fmr_2br":1350}`, *rows[1].RawPayload)
	assert.Nil(t, rows[2].RawPayload)
}

func TestExportBeyondQueryCeiling(t *testing.T) {
	store := repository.NewMemorySignalStore()
	start := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	batch := make([]models.MarketSignal, 0, 2500)
	for i := 0; i < 2500; i++ {
		sig, err := models.NewMarketSignal(models.SignalInput{
			Source: models.SourceFRED, GeoLevel: "county", GeoID: "49-035", GeoName: "Salt Lake County, UT",
			ObservedAt: start.AddDate(0, 0, i), Metric: "unemp_rate", Value: 3.4, Unit: "%",
		})
		require.NoError(t, err)
		batch = append(batch, sig)
	}
	_, err := store.Upsert(context.Background(), batch)
	require.NoError(t, err)

	exp := New(store)
	dir := t.TempDir()

	all := filepath.Join(dir, "all.csv")
	res, err := exp.Export(context.Background(), Request{Format: models.FormatCSV, Path: all})
	require.NoError(t, err)
	assert.Equal(t, 2500, res.Rows)
	assert.Len(t, readCSV(t, all), 2501)

	capped := filepath.Join(dir, "capped.csv")
	res, err = exp.Export(context.Background(), Request{
		Filter: models.SignalFilter{Limit: 2100},
		Format: models.FormatCSV,
		Path:   capped,
	})
	require.NoError(t, err)
	assert.Equal(t, 2100, res.Rows)
}

func TestExportWriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	exp := New(seededStore(t))
	_, err := exp.Export(context.Background(), Request{
		Format: models.FormatCSV,
		Path:   filepath.Join(blocker, "signals.csv"),
	})
	var exportErr *models.ExportError
	require.True(t, errors.As(err, &exportErr), "got %v", err)
	assert.Equal(t, filepath.Join(blocker, "signals.csv"), exportErr.Path)
}

type fakeUploader struct {
	path, contentType string
	err               error
}

func (f *fakeUploader) UploadFile(_ context.Context, localPath, contentType string) (string, error) {
	f.path, f.contentType = localPath, contentType
	if f.err != nil {
		return "", f.err
	}
	return "s3://exports/" + filepath.Base(localPath), nil
}

func TestExportUpload(t *testing.T) {
	up := &fakeUploader{}
	exp := New(seededStore(t), WithUploader(up))
	dest := filepath.Join(t.TempDir(), "signals.parquet")

	res, err := exp.Export(context.Background(), Request{Format: models.FormatParquet, Path: dest, Upload: true})
	require.NoError(t, err)
	assert.Equal(t, "s3://exports/signals.parquet", res.URI)
	assert.Equal(t, ContentTypeParquet, up.contentType)

	_, err = New(seededStore(t)).Export(context.Background(), Request{Format: models.FormatCSV, Path: dest + ".csv", Upload: true})
	var exportErr *models.ExportError
	assert.True(t, errors.As(err, &exportErr))
}

package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/timestamp"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestMemorySink(t *testing.T) {
	timestamp.FreezeTimeAt(time.Date(2021, 3, 4, 10, 0, 0, 0, time.UTC))
	defer timestamp.UnfreezeTime()

	sink := NewMemorySink()
	require.NoError(t, sink.Append(NewEvent("t1", entities.DataSourceDeleted, entities.DataSourceEntity, "s1", nil)))
	require.NoError(t, sink.Append(NewEvent("t1", entities.DataSourceCreated, entities.DataSourceEntity, "s2", nil)))

	deleted := sink.Find(entities.DataSourceDeleted, "s1")
	require.Len(t, deleted, 1)
	require.Equal(t, "t1", deleted[0].BusinessID)
	require.Equal(t, time.Date(2021, 3, 4, 10, 0, 0, 0, time.UTC), deleted[0].CreatedAt)
	require.Len(t, sink.Events(), 2)
}

func TestFileSinkWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	config := viper.New()
	config.Set("type", FileType)
	config.Set("path", dir)

	sink, err := NewSink(config, "test")
	require.NoError(t, err)

	require.NoError(t, sink.Append(NewEvent("t1", entities.PipelineCreated, entities.PipelineEntity, "p1", map[string]interface{}{"name": "daily"})))
	require.NoError(t, sink.Close())

	file, err := os.Open(filepath.Join(dir, "test-audit.log"))
	require.NoError(t, err)
	defer file.Close()

	scanner := bufio.NewScanner(file)
	require.True(t, scanner.Scan())

	payload := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &payload))
	require.Equal(t, "t1", payload["businessId"])
	require.Equal(t, entities.PipelineCreated, payload["action"])
	require.Equal(t, entities.PipelineEntity, payload["entityType"])
	require.Equal(t, "p1", payload["entityId"])
	require.Contains(t, payload, "createdAt")
}

func TestUnknownSinkType(t *testing.T) {
	config := viper.New()
	config.Set("type", "kafka")
	_, err := NewSink(config, "")
	require.Error(t, err)
}

package conf

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationUnmarshal(t *testing.T) {
	var s struct {
		D Duration `json:"d"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"d": "5m"}`), &s))
	assert.Equal(t, 5*time.Minute, s.D.AsDuration())

	require.NoError(t, json.Unmarshal([]byte(`{"d": "1.5s"}`), &s))
	assert.Equal(t, 1500*time.Millisecond, s.D.AsDuration())

	// 数值按纳秒解释
	require.NoError(t, json.Unmarshal([]byte(`{"d": 1000000000}`), &s))
	assert.Equal(t, time.Second, s.D.AsDuration())

	assert.Error(t, json.Unmarshal([]byte(`{"d": "soon"}`), &s))
}

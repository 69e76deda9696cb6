package frameclient_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guyghost/backtestkit/internal/frameclient"
)

func TestGetTimeframesReturnsAscendingVector(t *testing.T) {
	base := time.Unix(0, 0)
	schema := frameclient.FrameSchema{
		Name: "1m-window",
		GetTimeframes: func() ([]time.Time, error) {
			return []time.Time{base, base.Add(time.Minute), base.Add(2 * time.Minute)}, nil
		},
	}

	client := frameclient.New(schema)
	frames, err := client.GetTimeframes()
	require.NoError(t, err)
	assert.Len(t, frames, 3)
}

func TestGetTimeframesRejectsEmptyVector(t *testing.T) {
	schema := frameclient.FrameSchema{
		Name:          "empty",
		GetTimeframes: func() ([]time.Time, error) { return nil, nil },
	}
	client := frameclient.New(schema)
	_, err := client.GetTimeframes()
	require.Error(t, err)
}

func TestGetTimeframesRejectsNonAscendingVector(t *testing.T) {
	base := time.Unix(0, 0)
	schema := frameclient.FrameSchema{
		Name: "bad",
		GetTimeframes: func() ([]time.Time, error) {
			return []time.Time{base.Add(time.Minute), base}, nil
		},
	}
	client := frameclient.New(schema)
	_, err := client.GetTimeframes()
	require.Error(t, err)
}

func TestFrameSchemaValidateRejectsMissingGetTimeframes(t *testing.T) {
	require.Error(t, frameclient.FrameSchema{Name: "x"}.Validate())
}

package db

import (
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/jsphweid/melodex/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo keeps items in memory, keyed by PK.
type fakeDynamo struct {
	dynamodbiface.DynamoDBAPI
	items   map[string]map[string]*dynamodb.AttributeValue
	batches int
	fail    bool
}

func newFake() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]*dynamodb.AttributeValue)}
}

func (f *fakeDynamo) PutItem(in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
	if f.fail {
		return nil, fmt.Errorf("boom")
	}
	f.items[*in.Item["PK"].S] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) BatchGetItem(in *dynamodb.BatchGetItemInput) (*dynamodb.BatchGetItemOutput, error) {
	if f.fail {
		return nil, fmt.Errorf("boom")
	}
	f.batches++
	out := &dynamodb.BatchGetItemOutput{Responses: make(map[string][]map[string]*dynamodb.AttributeValue)}
	for table, ka := range in.RequestItems {
		if len(ka.Keys) > maxBatchKeys {
			return nil, fmt.Errorf("too many keys: %d", len(ka.Keys))
		}
		for _, k := range ka.Keys {
			if item, ok := f.items[*k["PK"].S]; ok {
				out.Responses[table] = append(out.Responses[table], item)
			}
		}
	}
	return out, nil
}

func TestPutAndGet(t *testing.T) {
	fake := newFake()
	c := NewWithClient(fake, "test-table")

	onset := 1.5
	notes := []model.MusicalNote{{Pitch: 60, StartTimeMs: 0, DurationMs: 500, Velocity: 100}}
	require.NoError(t, c.PutAnalysis(model.Analysis{Key: "midi#a", Kind: model.KindMidi, Notes: notes}))
	require.NoError(t, c.PutAnalysis(model.Analysis{
		Key:   "audio#b",
		Kind:  model.KindAudio,
		Onset: &model.OnsetResult{HasOnset: true, OnsetTimeSec: &onset, Reason: model.ReasonWindowHitRatio},
	}))

	got, err := c.GetAnalyses([]string{"midi#a", "audio#b", "midi#missing"})
	require.NoError(t, err)

	assert := assert.New(t)
	assert.Len(got, 2)
	assert.Equal(notes, got["midi#a"].Notes)
	assert.NotZero(got["midi#a"].CreatedAt)
	assert.Equal(1.5, *got["audio#b"].Onset.OnsetTimeSec)

	a, ok, err := c.GetAnalysis("midi#missing")
	require.NoError(t, err)
	assert.False(ok)
	assert.Empty(a.Key)
}

func TestGetAnalysesBatches(t *testing.T) {
	fake := newFake()
	c := NewWithClient(fake, "test-table")

	var keys []string
	for i := 0; i < 250; i++ {
		keys = append(keys, fmt.Sprintf("midi#%d", i))
	}
	require.NoError(t, c.PutAnalysis(model.Analysis{Key: "midi#249", Kind: model.KindMidi}))

	got, err := c.GetAnalyses(keys)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 3, fake.batches)
}

func TestErrorsAreWrapped(t *testing.T) {
	fake := newFake()
	fake.fail = true
	c := NewWithClient(fake, "test-table")

	_, err := c.GetAnalyses([]string{"x"})
	assert.Error(t, err)
	assert.Equal(t, "boom", errors.Cause(err).Error())
	assert.Error(t, c.PutAnalysis(model.Analysis{Key: "x"}))
}

func TestNilCache(t *testing.T) {
	var c *Cache
	got, err := c.GetAnalyses([]string{"x"})
	assert.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, c.PutAnalysis(model.Analysis{Key: "x"}))
}

func TestContentKey(t *testing.T) {
	a := ContentKey(model.KindMidi, []byte("abc"))
	assert.Equal(t, "midi#ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", a)
	assert.NotEqual(t, a, ContentKey(model.KindAudio, []byte("abc")))
}

func TestFromEnvWithoutEndpoint(t *testing.T) {
	t.Setenv("DYNAMO_ENDPOINT", "")
	assert.Nil(t, FromEnv())
}

// Package db caches analysis results in DynamoDB so unchanged content is not
// analyzed twice.
package db

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/jsphweid/melodex/constants"
	"github.com/jsphweid/melodex/model"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// BatchGetItem accepts at most this many keys per request.
const maxBatchKeys = 100

type Cache struct {
	client dynamodbiface.DynamoDBAPI
	table  string
}

func New(endpoint, region, table string) (*Cache, error) {
	cfg := &aws.Config{Region: aws.String(region)}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "could not create a new DynamoDB session")
	}
	return NewWithClient(dynamodb.New(sess), table), nil
}

// FromEnv returns nil when DYNAMO_ENDPOINT is unset; a nil *Cache is a valid
// cache that never hits.
func FromEnv() *Cache {
	endpoint := constants.GetDynamoEndpoint()
	if endpoint == "" {
		return nil
	}
	c, err := New(endpoint, constants.GetDynamoRegion(), constants.DynamoTable)
	if err != nil {
		log.WithError(err).Warn("analysis cache disabled")
		return nil
	}
	return c
}

func NewWithClient(client dynamodbiface.DynamoDBAPI, table string) *Cache {
	return &Cache{client: client, table: table}
}

// ContentKey names content by kind and digest, so the same bytes analyzed as
// midi and as audio never collide.
func ContentKey(kind model.EntryKind, data []byte) string {
	sum := sha256.Sum256(data)
	return string(kind) + "#" + hex.EncodeToString(sum[:])
}

func (c *Cache) GetAnalyses(keys []string) (map[string]model.Analysis, error) {
	res := make(map[string]model.Analysis)
	if c == nil || len(keys) == 0 {
		return res, nil
	}

	for start := 0; start < len(keys); start += maxBatchKeys {
		end := start + maxBatchKeys
		if end > len(keys) {
			end = len(keys)
		}

		var items []map[string]*dynamodb.AttributeValue
		for _, key := range keys[start:end] {
			items = append(items, map[string]*dynamodb.AttributeValue{
				"PK": {S: aws.String(key)},
			})
		}
		input := &dynamodb.BatchGetItemInput{
			RequestItems: map[string]*dynamodb.KeysAndAttributes{
				c.table: {Keys: items},
			},
		}
		out, err := c.client.BatchGetItem(input)
		if err != nil {
			return res, errors.Wrap(err, "error from DynamoDB")
		}

		for _, v := range out.Responses[c.table] {
			var a model.Analysis
			if err := dynamodbattribute.UnmarshalMap(v, &a); err != nil {
				return res, errors.Wrap(err, "could not decode cached analysis")
			}
			res[a.Key] = a
		}
	}
	return res, nil
}

func (c *Cache) GetAnalysis(key string) (model.Analysis, bool, error) {
	m, err := c.GetAnalyses([]string{key})
	if err != nil {
		return model.Analysis{}, false, err
	}
	a, ok := m[key]
	return a, ok, nil
}

func (c *Cache) PutAnalysis(a model.Analysis) error {
	if c == nil {
		return nil
	}
	if a.CreatedAt == 0 {
		a.CreatedAt = time.Now().Unix()
	}
	item, err := dynamodbattribute.MarshalMap(a)
	if err != nil {
		return errors.Wrap(err, "could not encode analysis")
	}
	_, err = c.client.PutItem(&dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item:      item,
	})
	return errors.Wrap(err, "error from DynamoDB")
}

package services

import (
	"context"
	"io"
	"math/big"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"desci-meme/market"
	"desci-meme/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	owner      = market.MustParseAddress("0x1000000000000000000000000000000000000001")
	researcher = market.MustParseAddress("0x2000000000000000000000000000000000000002")
	buyer      = market.MustParseAddress("0x3000000000000000000000000000000000000003")
)

func ether(t *testing.T, s string) *big.Int {
	t.Helper()
	v, err := market.ParseNative(s)
	require.NoError(t, err)
	return v
}

func testParams(t *testing.T) market.TokenParams {
	return market.TokenParams{
		Name:          "Test Research",
		Symbol:        "TEST",
		PDFHash:       "QmPdfHash123",
		ImageHash:     "QmImageHash456",
		Description:   "Test meme description",
		Price:         ether(t, "0.1"),
		InitialSupply: 1000,
	}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := storage.OpenMemory(uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newTestRegistry(t *testing.T, db *gorm.DB) *RegistryService {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	return NewRegistryService(owner, market.DefaultDecimals, storage.NewLedger(db), zap.NewNop(), metrics)
}

// memS3 ist ein S3-Ersatz im Speicher; jeder Put rückt die Uhr um eine Minute vor.
type memS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	modified map[string]time.Time
	clock    time.Time
}

func newMemS3() *memS3 {
	return &memS3{
		objects:  map[string][]byte{},
		modified: map[string]time.Time{},
		clock:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.clock.Add(time.Minute)
	m.objects[*in.Key] = data
	m.modified[*in.Key] = m.clock
	return &s3.PutObjectOutput{}, nil
}

func (m *memS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(m.objects[k]))),
			LastModified: aws.Time(m.modified[k]),
		})
	}
	return out, nil
}

func (m *memS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *memS3) keys(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (m *memS3) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

package services

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"desci-meme/market"
	"desci-meme/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	snapshotPrefix     = "snapshots/"
	// feste Breite, damit Schlüssel lexikographisch nach Zeit sortieren
	snapshotTimeFormat = "2006-01-02T15-04-05.000000000Z"
)

// Snapshot ist der vollständige Stand der Registry zu einem Zeitpunkt.
type Snapshot struct {
	TakenAt time.Time       `json:"taken_at"`
	Factory market.Address  `json:"factory"`
	Owner   market.Address  `json:"owner"`
	Tokens  []TokenSnapshot `json:"tokens"`
}

type TokenSnapshot struct {
	Record  market.ResearchRecord `json:"record"`
	Info    market.TokenInfo      `json:"info"`
	Holders []HolderBalance       `json:"holders"`
}

type HolderBalance struct {
	Holder  market.Address `json:"holder"`
	Balance string         `json:"balance"`
}

// SnapshotService sichert die Registry als gzip-JSON nach S3 und rotiert alte Sicherungen.
type SnapshotService struct {
	Bucket  *storage.Bucket
	Logger  *zap.Logger
	Metrics *Metrics
	Keep    int
	Now     func() time.Time
}

func NewSnapshotService(bucket *storage.Bucket, logger *zap.Logger, metrics *Metrics, keep int) *SnapshotService {
	return &SnapshotService{Bucket: bucket, Logger: logger, Metrics: metrics, Keep: keep, Now: time.Now}
}

// Build erstellt einen Snapshot der Factory. Holder sind nach Adresse sortiert.
func (s *SnapshotService) Build(f *market.Factory) Snapshot {
	snap := Snapshot{
		TakenAt: s.Now().UTC(),
		Factory: f.Address(),
		Owner:   f.Owner(),
	}
	for _, rec := range f.Records() {
		tok, err := f.Token(rec.ID)
		if err != nil {
			continue
		}
		info, holders := tok.Snapshot()
		ts := TokenSnapshot{Record: rec, Info: info, Holders: []HolderBalance{}}
		for holder, bal := range holders {
			ts.Holders = append(ts.Holders, HolderBalance{Holder: holder, Balance: bal.String()})
		}
		sort.Slice(ts.Holders, func(i, j int) bool {
			return ts.Holders[i].Holder.Hex() < ts.Holders[j].Holder.Hex()
		})
		snap.Tokens = append(snap.Tokens, ts)
	}
	return snap
}

// Upload speichert den Snapshot unter snapshots/snapshot-<Zeitstempel>-<Suffix>.json.gz.
func (s *SnapshotService) Upload(ctx context.Context, snap Snapshot) (string, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(snap); err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("compress snapshot: %w", err)
	}

	key := snapshotPrefix + fmt.Sprintf("snapshot-%s-%s.json.gz",
		snap.TakenAt.Format(snapshotTimeFormat), uuid.NewString()[:8])
	if _, err := s.Bucket.Put(ctx, key, buf.Bytes(), "application/gzip"); err != nil {
		return "", err
	}
	if s.Metrics != nil {
		s.Metrics.Snapshots.Inc()
	}
	s.Logger.Info("Snapshot uploaded", zap.String("key", key), zap.Int("tokens", len(snap.Tokens)), zap.Int("bytes", buf.Len()))
	return key, nil
}

// Rotate löscht alle bis auf die neuesten Keep Snapshots.
func (s *SnapshotService) Rotate(ctx context.Context) (int, error) {
	objects, err := s.Bucket.List(ctx, snapshotPrefix)
	if err != nil {
		return 0, err
	}
	if len(objects) <= s.Keep {
		s.Logger.Debug("No snapshot rotation needed", zap.Int("snapshots", len(objects)), zap.Int("keep", s.Keep))
		return 0, nil
	}

	deleted := 0
	for _, obj := range objects[s.Keep:] {
		s.Logger.Info("Deleting old snapshot", zap.String("key", obj.Key))
		if err := s.Bucket.Delete(ctx, obj.Key); err != nil {
			s.Logger.Error("Failed to delete snapshot", zap.String("key", obj.Key), zap.Error(err))
			continue
		}
		deleted++
	}
	return deleted, nil
}

// Run erstellt, speichert und rotiert in einem Schritt.
func (s *SnapshotService) Run(ctx context.Context, f *market.Factory) (string, error) {
	key, err := s.Upload(ctx, s.Build(f))
	if err != nil {
		return "", err
	}
	if _, err := s.Rotate(ctx); err != nil {
		return key, fmt.Errorf("rotate snapshots: %w", err)
	}
	return key, nil
}

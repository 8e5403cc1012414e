package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cardionics/heartml/internal/training"
)

// Lifecycle stages.
const (
	StageNone       = "None"
	StageStaging    = "Staging"
	StageProduction = "Production"
	StageArchived   = "Archived"
)

// ErrModelNotFound is returned when a model name, version, or stage resolves
// to nothing.
var ErrModelNotFound = errors.New("model not found")

// Registry manages versioned model artifacts and their lifecycle stages.
type Registry interface {
	// Register stores a new model version and returns its version string.
	Register(ctx context.Context, model *training.TrainedModel) (string, error)
	// Transition moves a version to a stage. Promoting to Production
	// archives any previous Production version of the same model.
	Transition(ctx context.Context, name, version, stage string) error
	// Load fetches a model by selector: a stage name resolves the latest
	// version at that stage, "latest" the newest version regardless of
	// stage, and a numeric string that exact version.
	Load(ctx context.Context, name, selector string) (*training.TrainedModel, error)
	// Versions lists the known versions of a model, oldest first.
	Versions(ctx context.Context, name string) ([]VersionInfo, error)
}

// VersionInfo describes one registered model version.
type VersionInfo struct {
	Version   string    `json:"version"`
	Stage     string    `json:"stage"`
	Path      string    `json:"path"`
	Algorithm string    `json:"algorithm"`
	CreatedAt time.Time `json:"created_at"`
}

type manifest struct {
	Name     string        `json:"name"`
	Versions []VersionInfo `json:"versions"`
}

// BlobStore is the byte-level artifact storage the registry persists to.
type BlobStore interface {
	PutBytes(ctx context.Context, key string, data []byte) error
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// blobRegistry keeps model artifacts and a per-model manifest.json in a
// BlobStore. A process-wide mutex serializes manifest read-modify-write.
type blobRegistry struct {
	logger *zap.SugaredLogger
	store  BlobStore
	prefix string

	mu sync.Mutex
}

// New creates a blob-backed registry rooted at the given key prefix.
func New(logger *zap.SugaredLogger, store BlobStore, prefix string) Registry {
	if prefix == "" {
		prefix = "models"
	}
	return &blobRegistry{logger: logger, store: store, prefix: prefix}
}

func (r *blobRegistry) manifestKey(name string) string {
	return path.Join(r.prefix, name, "manifest.json")
}

func (r *blobRegistry) artifactKey(name, version string) string {
	return path.Join(r.prefix, name, version, "model.gob")
}

func (r *blobRegistry) readManifest(ctx context.Context, name string) (*manifest, error) {
	key := r.manifestKey(name)
	ok, err := r.store.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check manifest for %s: %w", name, err)
	}
	if !ok {
		return &manifest{Name: name}, nil
	}
	data, err := r.store.GetBytes(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest for %s: %w", name, err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest for %s: %w", name, err)
	}
	return &m, nil
}

func (r *blobRegistry) writeManifest(ctx context.Context, m *manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest for %s: %w", m.Name, err)
	}
	if err := r.store.PutBytes(ctx, r.manifestKey(m.Name), data); err != nil {
		return fmt.Errorf("failed to write manifest for %s: %w", m.Name, err)
	}
	return nil
}

func (r *blobRegistry) Register(ctx context.Context, model *training.TrainedModel) (string, error) {
	if model.Name == "" {
		return "", errors.New("model name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	m, err := r.readManifest(ctx, model.Name)
	if err != nil {
		return "", err
	}
	version := strconv.Itoa(len(m.Versions) + 1)
	model.Version = version

	data, err := model.Encode()
	if err != nil {
		return "", err
	}
	key := r.artifactKey(model.Name, version)
	if err := r.store.PutBytes(ctx, key, data); err != nil {
		return "", fmt.Errorf("failed to store model %s version %s: %w", model.Name, version, err)
	}

	m.Versions = append(m.Versions, VersionInfo{
		Version:   version,
		Stage:     StageNone,
		Path:      key,
		Algorithm: model.Algorithm,
		CreatedAt: time.Now().UTC(),
	})
	if err := r.writeManifest(ctx, m); err != nil {
		return "", err
	}
	r.logger.Infow("registered model", "name", model.Name, "version", version, "algorithm", model.Algorithm)
	return version, nil
}

func (r *blobRegistry) Transition(ctx context.Context, name, version, stage string) error {
	switch stage {
	case StageNone, StageStaging, StageProduction, StageArchived:
	default:
		return fmt.Errorf("invalid stage %q", stage)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	m, err := r.readManifest(ctx, name)
	if err != nil {
		return err
	}
	found := false
	for i := range m.Versions {
		v := &m.Versions[i]
		if v.Version == version {
			v.Stage = stage
			found = true
		} else if stage == StageProduction && v.Stage == StageProduction {
			v.Stage = StageArchived
		}
	}
	if !found {
		return fmt.Errorf("model %s version %s: %w", name, version, ErrModelNotFound)
	}
	if err := r.writeManifest(ctx, m); err != nil {
		return err
	}
	r.logger.Infow("transitioned model stage", "name", name, "version", version, "stage", stage)
	return nil
}

func (r *blobRegistry) Load(ctx context.Context, name, selector string) (*training.TrainedModel, error) {
	r.mu.Lock()
	m, err := r.readManifest(ctx, name)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	info := resolveVersion(m.Versions, selector)
	if info == nil {
		return nil, fmt.Errorf("model %s at %s: %w", name, selector, ErrModelNotFound)
	}
	data, err := r.store.GetBytes(ctx, info.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch model %s version %s: %w", name, info.Version, err)
	}
	model, err := training.DecodeModel(data)
	if err != nil {
		return nil, err
	}
	r.logger.Infow("loaded model", "name", name, "version", info.Version, "selector", selector)
	return model, nil
}

// resolveVersion picks a version by selector: "latest", an exact numeric
// version, or a stage name (latest version at that stage wins).
func resolveVersion(versions []VersionInfo, selector string) *VersionInfo {
	if len(versions) == 0 {
		return nil
	}
	if selector == "latest" {
		return &versions[len(versions)-1]
	}
	if isNumeric(selector) {
		for i := range versions {
			if versions[i].Version == selector {
				return &versions[i]
			}
		}
		return nil
	}
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].Stage == selector {
			return &versions[i]
		}
	}
	return nil
}

func isNumeric(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil && s != ""
}

func (r *blobRegistry) Versions(ctx context.Context, name string) ([]VersionInfo, error) {
	r.mu.Lock()
	m, err := r.readManifest(ctx, name)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if len(m.Versions) == 0 {
		return nil, fmt.Errorf("model %s: %w", name, ErrModelNotFound)
	}
	return append([]VersionInfo(nil), m.Versions...), nil
}

package voiceprint

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"speakerid/internal/apperr"
	"speakerid/internal/audio"
	"speakerid/internal/vectorstore"
)

// Registry is the sole writer path to the vector store's voiceprint
// records. Writes are serialized per name via a dedicated mutex; writes to
// different names proceed independently.
type Registry struct {
	store   vectorstore.Store
	mirror  *Mirror
	toolkit *audio.Toolkit
	vad     *audio.VAD
	extractor *audio.Extractor

	locks sync.Map // name -> *sync.Mutex
}

// New builds a registry over an already-constructed vector store, mirror,
// and the audio primitives enroll() needs to turn a raw file into a vector.
func New(store vectorstore.Store, mirror *Mirror, toolkit *audio.Toolkit, vad *audio.VAD, extractor *audio.Extractor) *Registry {
	return &Registry{store: store, mirror: mirror, toolkit: toolkit, vad: vad, extractor: extractor}
}

func (r *Registry) lockFor(name string) *sync.Mutex {
	l, _ := r.locks.LoadOrStore(name, &sync.Mutex{})
	return l.(*sync.Mutex)
}

// Enroll registers or reinforces name from a raw audio file. Direct
// enrollment through the API passes weight 2; callers reinforcing
// from a meeting pass weight=1 via EnrollEmbedding instead, since they
// already hold a computed embedding and must not re-extract.
func (r *Registry) Enroll(ctx context.Context, name, audioPath string, weight int) (sampleCount int, warning string, err error) {
	if name == "" {
		return 0, "", apperr.InvalidInput("name must not be empty")
	}

	rawMs, err := r.toolkit.ProbeDurationMs(ctx, audioPath)
	if err != nil {
		return 0, "", apperr.Internal(err, "failed to probe audio duration")
	}
	if rawMs < MinEnrollRawMs {
		return 0, "", apperr.InvalidInput("audio is %dms, need at least %dms", rawMs, MinEnrollRawMs)
	}

	wavPath := audioPath + ".16k.wav"
	if err := r.toolkit.ToWav16kMono(ctx, audioPath, wavPath); err != nil {
		return 0, "", apperr.Internal(err, "failed to convert audio")
	}

	samples, _, err := audio.ReadWav(wavPath)
	if err != nil {
		return 0, "", apperr.Internal(err, "failed to read converted audio")
	}

	speechMs, err := r.vad.SpeechDurationMs(samples)
	if err != nil {
		return 0, "", apperr.Internal(err, "vad failed")
	}
	if speechMs < MinEnrollSpeechMs {
		return 0, "", apperr.InvalidInput("only %dms of speech detected, need at least %dms", speechMs, MinEnrollSpeechMs)
	}

	vNew, err := r.extractor.Embed(samples)
	if err != nil {
		return 0, "", err
	}

	if speechMs < WarnSpeechBelowMs {
		warning = fmt.Sprintf("speech duration %dms is below the recommended %dms", speechMs, WarnSpeechBelowMs)
	}

	sampleCount, err = r.apply(ctx, name, vNew, weight)
	return sampleCount, warning, err
}

// EnrollEmbedding applies the update rule directly to a precomputed
// embedding, used by enroll_from_meeting and by confirm-with-reinforcement,
// neither of which may re-extract the embedding.
func (r *Registry) EnrollEmbedding(ctx context.Context, name string, embedding []float32, weight int) (int, error) {
	if name == "" {
		return 0, apperr.InvalidInput("name must not be empty")
	}
	return r.apply(ctx, name, embedding, weight)
}

// apply performs the weighted-mean or EMA update for name under its
// per-name lock, then writes through to the vector store and refreshes the
// mirror.
func (r *Registry) apply(ctx context.Context, name string, vNew []float32, weight int) (int, error) {
	lock := r.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	vOld, meta, exists, err := r.store.Get(ctx, name)
	if err != nil {
		return 0, err
	}

	var vUpdated []float32
	var sampleCount int

	if !exists {
		vUpdated = normalize(vNew)
		sampleCount = weight
	} else if meta.SampleCount+1 <= EMAMinSamples {
		oldWeight := float32(meta.SampleCount)
		newWeight := float32(weight)
		total := oldWeight + newWeight
		vUpdated = make([]float32, len(vOld))
		for i := range vOld {
			vUpdated[i] = (vOld[i]*oldWeight + vNew[i]*newWeight) / total
		}
		vUpdated = normalize(vUpdated)
		sampleCount = meta.SampleCount + weight
	} else {
		vUpdated = make([]float32, len(vOld))
		for i := range vOld {
			vUpdated[i] = (1-EMAAlpha)*vOld[i] + EMAAlpha*vNew[i]
		}
		vUpdated = normalize(vUpdated)
		sampleCount = meta.SampleCount + 1
	}

	if err := r.store.Upsert(ctx, name, vUpdated, vectorstore.Metadata{SampleCount: sampleCount}); err != nil {
		return 0, err
	}

	if err := r.mirror.Set(name, sampleCount); err != nil {
		// The vector store is the source of truth; a mirror write failure
		// does not roll back the upsert, it starts a background rebuild of
		// the mirror from the store instead.
		log.Warn().Err(err).Str("name", name).Msg("mirror write failed after voiceprint upsert, scheduling rebuild")
		go func() {
			if _, err := r.SyncFromStore(context.Background()); err != nil {
				log.Warn().Err(err).Msg("scheduled mirror rebuild failed")
			}
		}()
	}

	return sampleCount, nil
}

// Delete removes name from the vector store and the local mirror.
func (r *Registry) Delete(ctx context.Context, name string) error {
	lock := r.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	_, _, exists, err := r.store.Get(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return apperr.NotFound("no voiceprint named %q", name)
	}

	if err := r.store.Delete(ctx, name); err != nil {
		return err
	}
	if err := r.mirror.Remove(name); err != nil {
		log.Warn().Err(err).Str("name", name).Msg("mirror remove failed after voiceprint delete")
	}
	return nil
}

// Get returns a single voiceprint.
func (r *Registry) Get(ctx context.Context, name string) (*Voiceprint, error) {
	v, meta, exists, err := r.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.NotFound("no voiceprint named %q", name)
	}
	return &Voiceprint{Name: name, Embedding: v, SampleCount: meta.SampleCount, UpdatedAt: time.Now()}, nil
}

// SyncFromStore pulls list_all from the vector store and rebuilds the local
// mirror from scratch.
func (r *Registry) SyncFromStore(ctx context.Context) (int, error) {
	entries, err := r.store.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	counts := make(map[string]int, len(entries))
	for _, e := range entries {
		counts[e.Name] = e.Metadata.SampleCount
	}
	if err := r.mirror.Replace(counts); err != nil {
		return 0, apperr.Internal(err, "failed to rebuild mirror")
	}
	return len(entries), nil
}

// ListAll returns every enrolled name with its sample count, from the
// mirror (not the vector store) for speed.
func (r *Registry) ListAll() map[string]int {
	return r.mirror.List()
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq < 1e-10 {
		return v
	}
	norm := float32(1.0 / math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * norm
	}
	return out
}

package dream

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/becomeliminal/affect-memory/memory"
)

// Backfill rewrites up to limit memories whose text lacks the timestamp
// prefix, as written by older versions. Each one is re-stored with its own
// timestamp (which stamps and re-embeds it) and the original is deleted.
// Access counts restart at zero. It returns the number of rewritten records.
func (d *Dreamer) Backfill(ctx context.Context, limit int) (int, error) {
	records, err := d.memories.Scan(ctx, limit, "")
	if err != nil {
		return 0, fmt.Errorf("scan: %w", err)
	}

	fixed := 0
	for _, r := range records {
		if memory.HasStamp(r.Text) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return fixed, err
		}

		importance := r.Importance
		_, err := d.memories.Store(ctx, r.Text, memory.StoreMetadata{
			EmotionVector: r.EmotionVector,
			Timestamp:     r.Time(),
			Importance:    &importance,
			Kind:          r.Kind,
			Emotions:      r.Emotions,
		})
		if err != nil {
			log.Warn().Err(err).Str("id", r.ID).Msg("backfill: rewrite failed, original kept")
			continue
		}
		if err := d.memories.Delete(ctx, r.ID); err != nil {
			return fixed, fmt.Errorf("delete %s: %w", r.ID, err)
		}
		fixed++
	}

	if fixed > 0 {
		log.Info().Int("count", fixed).Msg("backfill: added timestamp prefixes")
	}
	return fixed, nil
}

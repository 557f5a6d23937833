package registry

import (
	"context"
	"fmt"

	"github.com/go-kit/kit/log"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	fluxerr "github.com/nexusops/forge/pkg/errors"
	"github.com/nexusops/forge/pkg/config"
	"github.com/nexusops/forge/pkg/image"
)

// Pusher pushes image tags with a bounded retry/backoff loop. A tag
// counts as pushed only once the transport confirms the manifest
// exists at the registry, not merely when the upload returns.
type Pusher struct {
	transport Transport
	policy    config.PushPolicy
	clock     clockwork.Clock
	logger    log.Logger
}

func NewPusher(transport Transport, policy config.PushPolicy, clock clockwork.Clock, logger log.Logger) *Pusher {
	return &Pusher{
		transport: transport,
		policy:    policy,
		clock:     clock,
		logger:    log.With(logger, "component", "registry"),
	}
}

// Push pushes each tag in turn. Failure to land a sha tag after
// exhausting the attempt budget is fatal; failure of a latest tag
// alone is reported as a warning on the result, since the sha tag is
// authoritative for deployment identity.
func (p *Pusher) Push(ctx context.Context, name image.Name, tags []image.Tag) (Result, error) {
	result := Result{Image: name}
	if name.Image == "" {
		return result, &fluxerr.Error{
			Type: fluxerr.Validation,
			Err:  errors.New("blank image name"),
			Help: "A push needs an image to push; supply the registry coordinates.",
		}
	}
	if len(tags) == 0 {
		return result, &fluxerr.Error{
			Type: fluxerr.Validation,
			Err:  errors.New("no tags to push"),
			Help: "At least one tag must be supplied; use image.Resolve to compute the pair.",
		}
	}

	for _, tag := range tags {
		err := p.pushTag(ctx, &result, name.ToRef(tag))
		if err == nil {
			continue
		}
		if tag.Kind == image.KindLatest && fluxerr.TypeOf(err) == fluxerr.Transport {
			// The floating tag is a convenience pointer; losing it
			// does not change what gets deployed.
			p.logger.Log("warning", "failed to push floating tag", "tag", tag.String(), "err", err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("failed to push floating tag %s: %v", tag, err))
			continue
		}
		return result, err
	}
	return result, nil
}

func (p *Pusher) pushTag(ctx context.Context, result *Result, ref image.Ref) error {
	// An existing tag means a previous run already landed this
	// content; re-running the push must be safe.
	exists, err := p.transport.TagExists(ctx, ref)
	if err == nil && exists {
		p.logger.Log("info", "tag already present, skipping push", "ref", ref.String())
		result.Attempts = append(result.Attempts, Attempt{Tag: ref.Tag, N: 1, Outcome: OutcomeSkipped})
		return nil
	}

	b := &backoff{initial: p.policy.InitialBackoff, max: p.policy.MaxBackoff}
	var lastErr error
	for n := 1; n <= p.policy.MaxAttempts; n++ {
		if n > 1 {
			b.Failure()
			if err := sleep(ctx, p.clock, b.Wait()); err != nil {
				return err
			}
		}

		start := p.clock.Now()
		lastErr = p.tryOnce(ctx, ref)
		attempt := Attempt{Tag: ref.Tag, N: n, Elapsed: p.clock.Since(start)}
		if lastErr == nil {
			attempt.Outcome = OutcomeSucceeded
			result.Attempts = append(result.Attempts, attempt)
			ObservePush(start, p.clock.Now(), true, string(ref.Tag.Kind))
			return nil
		}
		attempt.Outcome = OutcomeFailed
		attempt.Err = lastErr.Error()
		result.Attempts = append(result.Attempts, attempt)
		p.logger.Log("warning", "push attempt failed", "ref", ref.String(), "attempt", n, "err", lastErr)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	ObservePush(p.clock.Now(), p.clock.Now(), false, string(ref.Tag.Kind))
	return &fluxerr.Error{
		Type: fluxerr.Transport,
		Err:  errors.Wrapf(lastErr, "pushing %s after %d attempts", ref.String(), p.policy.MaxAttempts),
		Help: fmt.Sprintf("The registry did not accept %s within the attempt budget. Check registry availability and credentials, then re-run the push.", ref.String()),
	}
}

// tryOnce uploads and then confirms the manifest is actually being
// served. Registries have been seen returning 200 on upload and then
// 404ing the manifest, so the existence check is what we trust.
func (p *Pusher) tryOnce(ctx context.Context, ref image.Ref) error {
	if err := p.transport.PushTag(ctx, ref); err != nil {
		return err
	}
	exists, err := p.transport.TagExists(ctx, ref)
	if err != nil {
		return errors.Wrap(err, "confirming pushed manifest")
	}
	if !exists {
		return errors.Errorf("registry accepted upload but does not serve %s", ref.String())
	}
	return nil
}

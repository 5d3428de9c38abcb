// Package shard implements the Shard Client and Router of §4.8 and the
// Split/Merge Orchestrator of §4.9.
//
// Retry wraps each RPC with github.com/cenkalti/backoff/v4 (found in the
// retrieval pack's AKJUS-bsc-erigon and evalgo-org-eve go.mod files — the
// "Polly-style retry wrapper" §9 calls for), retrying only transient
// transport errors; non-transient application errors (validation,
// not-found) surface unchanged per §4.8.
package shard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"accessplane/models"
)

// TransientError marks an error as a transient transport failure
// (connect/timeout) eligible for retry. Application errors — validation,
// not-found — are never wrapped in TransientError and so are never
// retried.
type TransientError struct {
	Err error
}

func (t *TransientError) Error() string { return t.Err.Error() }
func (t *TransientError) Unwrap() error { return t.Err }

// Transient wraps err as a TransientError.
func Transient(err error) error { return &TransientError{Err: err} }

// Client routes writes and queries to shard groups by hash range,
// and fans queries out across every shard in a role.
type Client struct {
	config *models.ShardConfiguration
	write  WriteTransport
	query  QueryTransport
	hasher models.Hasher

	retryCount    int
	retryInterval time.Duration
}

// NewClient constructs a shard Client against the given configuration
// snapshot. Callers that need to follow configuration changes (e.g.
// after a split/merge cutover, §4.9) construct a new Client with the
// updated *models.ShardConfiguration; Client itself does not watch for
// changes.
func NewClient(config *models.ShardConfiguration, write WriteTransport, query QueryTransport, retryCount int, retryInterval time.Duration) *Client {
	return &Client{
		config:        config,
		write:         write,
		query:         query,
		hasher:        models.FNV1aHash,
		retryCount:    retryCount,
		retryInterval: retryInterval,
	}
}

func (c *Client) ownerFor(role models.Role, key string) (models.ShardGroup, error) {
	hash := c.hasher(key)
	group, ok := c.config.Owner(role, hash)
	if !ok {
		return models.ShardGroup{}, models.NewError(models.CodeServiceUnavailable, "no shard group covers the requested key's hash range")
	}
	return group, nil
}

func roleFor(kind models.Kind) models.Role {
	switch kind {
	case models.KindUser, models.KindUserToGroup, models.KindUserToComponent, models.KindUserToEntity:
		return models.RoleUser
	case models.KindGroupToGroup:
		return models.RoleGroupToGroup
	default:
		return models.RoleGroup
	}
}

// RouteWrite picks the shard owning hash(key) for event.Kind's role and
// forwards the event to its writer endpoint synchronously, retrying
// transient failures.
func (c *Client) RouteWrite(ctx context.Context, key string, event models.Event) error {
	role := roleFor(event.Kind)
	group, err := c.ownerFor(role, key)
	if err != nil {
		return err
	}
	return c.withRetry(ctx, func() error {
		return c.write.Write(ctx, group.WriterEndpoint, event)
	})
}

// RouteQuery picks the shard owning hash(key) for kind's role and
// queries it directly, retrying transient failures.
func (c *Client) RouteQuery(ctx context.Context, kind models.Kind, key string) (QueryResult, error) {
	role := roleFor(kind)
	group, err := c.ownerFor(role, key)
	if err != nil {
		return QueryResult{}, err
	}
	var result QueryResult
	err = c.withRetry(ctx, func() error {
		r, err := c.query.Query(ctx, group.ReaderEndpoints[0], kind, key)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

// Fanout issues a role-wide query to every shard owning the role for
// kind, merging results according to merge.
func (c *Client) Fanout(ctx context.Context, kind models.Kind, merge MergeKind) (QueryResult, error) {
	role := roleFor(kind)
	groups := c.config.Sorted(role)
	if len(groups) == 0 {
		return QueryResult{}, models.NewError(models.CodeServiceUnavailable, "no shard groups registered for role", models.Attr("role", string(role)))
	}

	results := make([]QueryResult, len(groups))
	errs := make([]error, len(groups))

	var wg sync.WaitGroup
	wg.Add(len(groups))
	for i, g := range groups {
		i, g := i, g
		go func() {
			defer wg.Done()
			if len(g.ReaderEndpoints) == 0 {
				errs[i] = models.NewError(models.CodeServiceUnavailable, "shard group has no reader endpoints", models.Attr("group", g.Name))
				return
			}
			err := c.withRetry(ctx, func() error {
				r, err := c.query.FanoutQuery(ctx, g.ReaderEndpoints[0], kind)
				if err != nil {
					return err
				}
				results[i] = r
				return nil
			})
			errs[i] = err
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return QueryResult{}, err
		}
	}
	return mergeResults(results, merge), nil
}

func mergeResults(results []QueryResult, merge MergeKind) QueryResult {
	switch merge {
	case MergeBooleanOR:
		for _, r := range results {
			if r.Bool {
				return QueryResult{Bool: true}
			}
		}
		return QueryResult{Bool: false}

	case MergeUnion:
		seen := make(map[string]struct{})
		var out []string
		for _, r := range results {
			for _, item := range r.Items {
				if _, ok := seen[item]; !ok {
					seen[item] = struct{}{}
					out = append(out, item)
				}
			}
		}
		return QueryResult{Items: out}

	default: // MergeConcat
		var out []string
		for _, r := range results {
			out = append(out, r.Items...)
		}
		return QueryResult{Items: out}
	}
}

// withRetry retries fn up to c.retryCount additional times at a fixed
// interval, but only when fn's error is a TransientError — non-transient
// application errors surface immediately (§4.8).
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	attempt := 0
	operation := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		var transient *TransientError
		if !errors.As(err, &transient) {
			return backoff.Permanent(err)
		}
		attempt++
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryInterval), uint64(c.retryCount)), ctx)
	return backoff.Retry(operation, policy)
}

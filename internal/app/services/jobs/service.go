// Package jobs implements the job lifecycle state machine and the
// application-level operations built on it. All job mutation in the system
// goes through this service; it serializes per-job writes so transition
// guards hold even under concurrent calls.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domidentity "github.com/ReLoop-Network/market_layer/internal/app/domain/identity"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/job"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/ledgertx"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/stats"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/user"
	"github.com/ReLoop-Network/market_layer/internal/app/events"
	"github.com/ReLoop-Network/market_layer/internal/app/metrics"
	"github.com/ReLoop-Network/market_layer/internal/app/pricing"
	identitysvc "github.com/ReLoop-Network/market_layer/internal/app/services/identity"
	"github.com/ReLoop-Network/market_layer/internal/app/storage"
	"github.com/ReLoop-Network/market_layer/pkg/logger"
)

// lateCompletionAfter is the claim-to-completion window beyond which the
// collector takes a lateCompletion reputation hit.
const lateCompletionAfter = 72 * time.Hour

// Stores groups the persistence dependencies of the service.
type Stores struct {
	Jobs         storage.JobStore
	Users        storage.UserStore
	Transactions storage.TransactionStore
	Stats        storage.StatsStore
}

// Service exposes the marketplace operations to the UI layer.
type Service struct {
	stores   Stores
	identity *identitysvc.Service
	rates    map[job.Material]pricing.RateBand
	events   events.Publisher
	log      *logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a configured jobs service. A nil rates map uses the built-in
// defaults; a nil publisher disables notifications.
func New(stores Stores, identity *identitysvc.Service, rates map[job.Material]pricing.RateBand, publisher events.Publisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("jobs")
	}
	if rates == nil {
		rates = pricing.DefaultRates()
	}
	return &Service{
		stores:   stores,
		identity: identity,
		rates:    rates,
		events:   publisher,
		log:      log,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockFor serializes mutations of a single job. Claim races are decided
// here: the guard check and the committed write happen under one lock.
func (s *Service) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *Service) publish(ev events.Event) {
	if s.events != nil {
		s.events.Publish(ev)
	}
}

// CreateInput carries the fields of a new job posting.
type CreateInput struct {
	Title       string
	Description string
	Material    job.Material
	WeightKg    float64
	Location    string
	Contact     *job.Contact
	PhotoURI    string
	Poster      string
}

// Create validates and prices a new posting, persists it in the posted state
// and records the poster's activity.
func (s *Service) Create(ctx context.Context, in CreateInput) (job.Job, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Poster = strings.TrimSpace(in.Poster)

	if in.Title == "" {
		return job.Job{}, validationErr("title", "title is required")
	}
	if in.Poster == "" {
		return job.Job{}, validationErr("poster", "poster address is required")
	}
	if !in.Material.Valid() {
		return job.Job{}, validationErr("material", "unknown material category %q", in.Material)
	}
	if in.WeightKg <= 0 {
		return job.Job{}, validationErr("weight_kg", "weight must be positive, got %v", in.WeightKg)
	}
	if strings.TrimSpace(in.PhotoURI) == "" {
		return job.Job{}, validationErr("photo_uri", "photo is required")
	}

	quote, err := pricing.ComputeReward(s.rates, in.Material, in.WeightKg)
	if err != nil {
		return job.Job{}, validationErr("reward", "%v", err)
	}

	j := job.Job{
		Title:       in.Title,
		Description: in.Description,
		Material:    in.Material,
		WeightKg:    in.WeightKg,
		Location:    in.Location,
		Contact:     in.Contact,
		PhotoURI:    in.PhotoURI,
		Reward:      quote.Reward,
		Status:      job.StatusPosted,
		Poster:      in.Poster,
	}
	j, err = s.stores.Jobs.CreateJob(ctx, j)
	if err != nil {
		return job.Job{}, fmt.Errorf("persist job: %w", err)
	}

	if _, err := s.identity.EnsureIdentity(ctx, in.Poster); err != nil {
		s.log.WithError(err).Warnf("identity upsert for poster %s failed", in.Poster)
	}
	if err := s.bumpProfile(ctx, in.Poster, func(p *user.Profile) { p.JobsPosted++ }); err != nil {
		return job.Job{}, err
	}
	if err := s.bumpStats(ctx, func(agg *stats.Aggregate) {
		agg.TotalJobs++
		agg.TotalWeightKg += in.WeightKg
	}); err != nil {
		return job.Job{}, err
	}

	if _, err := s.stores.Transactions.AppendTransaction(ctx, ledgertx.Record{
		Type:   ledgertx.TypePosting,
		From:   in.Poster,
		Amount: j.Reward,
		Status: ledgertx.StatusConfirmed,
		JobID:  j.ID,
	}); err != nil {
		return job.Job{}, fmt.Errorf("record posting: %w", err)
	}

	metrics.JobCreated()
	s.publish(events.Event{Type: events.TypeJobPosted, JobID: j.ID, Address: in.Poster, Amount: j.Reward})
	s.log.WithField("job_id", j.ID).
		WithField("material", string(j.Material)).
		Infof("job posted for %.2f tokens", j.Reward)
	return j, nil
}

// Claim assigns a posted job to a collector and locks the reward. At most
// one claim ever succeeds; losers of the race receive ErrConflict.
func (s *Service) Claim(ctx context.Context, id, actor string) (job.Job, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return job.Job{}, validationErr("actor", "collector address is required")
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	j, err := s.getJob(ctx, id)
	if err != nil {
		return job.Job{}, err
	}
	if j.Collector != "" {
		metrics.Transition("claim", "conflict")
		return job.Job{}, fmt.Errorf("job %s: %w", id, ErrConflict)
	}
	if j.Status != job.StatusPosted {
		metrics.Transition("claim", "invalid")
		return job.Job{}, transitionErr(id, j.Status, job.StatusClaimed)
	}
	if actor == j.Poster {
		return job.Job{}, validationErr("actor", "poster cannot claim their own job")
	}

	j.Status = job.StatusClaimed
	j.Collector = actor
	j.LockedAmount = j.Reward
	j.ClaimedAt = time.Now().UTC()

	j, err = s.stores.Jobs.UpdateJob(ctx, j)
	if err != nil {
		return job.Job{}, fmt.Errorf("persist claim: %w", err)
	}

	if _, err := s.identity.EnsureIdentity(ctx, actor); err != nil {
		s.log.WithError(err).Warnf("identity upsert for collector %s failed", actor)
	}
	if err := s.bumpProfile(ctx, actor, func(*user.Profile) {}); err != nil {
		return job.Job{}, err
	}
	if err := s.recountActiveCollectors(ctx); err != nil {
		return job.Job{}, err
	}

	if _, err := s.stores.Transactions.AppendTransaction(ctx, ledgertx.Record{
		Type:   ledgertx.TypeClaim,
		From:   j.Poster,
		To:     actor,
		Amount: j.LockedAmount,
		Status: ledgertx.StatusConfirmed,
		JobID:  j.ID,
	}); err != nil {
		return job.Job{}, fmt.Errorf("record claim: %w", err)
	}

	metrics.Transition("claim", "ok")
	s.publish(events.Event{Type: events.TypeJobClaimed, JobID: j.ID, Address: j.Poster, Amount: j.LockedAmount})
	s.log.WithField("job_id", j.ID).WithField("collector", actor).Info("job claimed")
	return j, nil
}

// CompletionProof carries the collector's evidence for a completed pickup.
type CompletionProof struct {
	Actor          string
	ActualWeightKg float64 // optional re-weigh at handoff
	Note           string  // required when the re-weigh undercuts the price
}

// Complete marks a claimed job as completed. If an actual weight is supplied
// and the recomputed price undercuts the locked reward by more than 20%, the
// collector must supply an explanation before payment becomes possible.
func (s *Service) Complete(ctx context.Context, id string, proof CompletionProof) (job.Job, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	j, err := s.getJob(ctx, id)
	if err != nil {
		return job.Job{}, err
	}
	if j.Status != job.StatusClaimed {
		metrics.Transition("complete", "invalid")
		return job.Job{}, transitionErr(id, j.Status, job.StatusCompleted)
	}
	if proof.Actor != j.Collector {
		return job.Job{}, validationErr("actor", "only the collector may complete the job")
	}

	if proof.ActualWeightKg > 0 {
		quote, err := pricing.ComputeReward(s.rates, j.Material, proof.ActualWeightKg)
		if err != nil {
			return job.Job{}, validationErr("actual_weight_kg", "%v", err)
		}
		if pricing.BelowVerifiedThreshold(j.LockedAmount, quote.Reward) && strings.TrimSpace(proof.Note) == "" {
			return job.Job{}, validationErr("note",
				"verified price %.2f undercuts locked reward %.2f by more than 20%%; an explanation is required",
				quote.Reward, j.LockedAmount)
		}
		j.ActualWeightKg = proof.ActualWeightKg
	}

	j.Status = job.StatusCompleted
	j.CompletedAt = time.Now().UTC()
	j.CompletionNote = strings.TrimSpace(proof.Note)

	j, err = s.stores.Jobs.UpdateJob(ctx, j)
	if err != nil {
		return job.Job{}, fmt.Errorf("persist completion: %w", err)
	}

	if err := s.bumpProfile(ctx, j.Collector, func(p *user.Profile) { p.JobsCompleted++ }); err != nil {
		return job.Job{}, err
	}
	if err := s.bumpStats(ctx, func(agg *stats.Aggregate) { agg.CompletedToday++ }); err != nil {
		return job.Job{}, err
	}
	if err := s.recountActiveCollectors(ctx); err != nil {
		return job.Job{}, err
	}

	s.applyReputation(ctx, j.Collector, domidentity.EventCompleted)
	if j.CompletedAt.Sub(j.ClaimedAt) > lateCompletionAfter {
		s.applyReputation(ctx, j.Collector, domidentity.EventLateCompletion)
	}

	metrics.Transition("complete", "ok")
	s.publish(events.Event{Type: events.TypeJobCompleted, JobID: j.ID, Address: j.Poster})
	s.log.WithField("job_id", j.ID).Info("job completed")
	return j, nil
}

// ReleasePayment settles a completed job: the locked reward moves to the
// collector (minus the platform fee) and the job reaches its terminal paid
// state. Only the poster may release.
func (s *Service) ReleasePayment(ctx context.Context, id, actor string) (job.Job, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	j, err := s.getJob(ctx, id)
	if err != nil {
		return job.Job{}, err
	}
	if j.Status != job.StatusCompleted {
		metrics.Transition("release", "invalid")
		return job.Job{}, transitionErr(id, j.Status, job.StatusPaymentPending)
	}
	if actor != j.Poster {
		return job.Job{}, validationErr("actor", "only the poster may release payment")
	}

	j.Status = job.StatusPaymentPending
	if j, err = s.stores.Jobs.UpdateJob(ctx, j); err != nil {
		return job.Job{}, fmt.Errorf("persist payment_pending: %w", err)
	}

	net := pricing.CollectorNet(j.LockedAmount)
	rec, err := s.stores.Transactions.AppendTransaction(ctx, ledgertx.Record{
		Type:   ledgertx.TypePayment,
		From:   j.Poster,
		To:     j.Collector,
		Amount: net,
		Status: ledgertx.StatusConfirmed,
		JobID:  j.ID,
	})
	if err != nil {
		return job.Job{}, fmt.Errorf("record payment: %w", err)
	}

	if err := s.bumpProfile(ctx, j.Collector, func(p *user.Profile) { p.TotalEarned = pricing.Round2(p.TotalEarned + net) }); err != nil {
		return job.Job{}, err
	}
	if err := s.bumpProfile(ctx, j.Poster, func(p *user.Profile) { p.TotalSpent = pricing.Round2(p.TotalSpent + j.LockedAmount) }); err != nil {
		return job.Job{}, err
	}
	if err := s.bumpStats(ctx, func(agg *stats.Aggregate) {
		agg.TotalRewardPaid = pricing.Round2(agg.TotalRewardPaid + j.LockedAmount)
	}); err != nil {
		return job.Job{}, err
	}

	j.Status = job.StatusPaid
	j.PaidAt = time.Now().UTC()
	if j, err = s.stores.Jobs.UpdateJob(ctx, j); err != nil {
		return job.Job{}, fmt.Errorf("persist paid: %w", err)
	}

	if _, err := s.identity.IssueCredential(ctx, j.Poster, j.Collector,
		fmt.Sprintf("recycled %.1fkg %s", j.WeightKg, j.Material)); err != nil {
		s.log.WithError(err).Warnf("credential issuance for job %s failed", j.ID)
	}

	metrics.Transition("release", "ok")
	metrics.RewardPaid(j.LockedAmount)
	s.publish(events.Event{Type: events.TypePaymentReleased, JobID: j.ID, Address: j.Collector, Amount: net, Message: rec.ID})
	s.log.WithField("job_id", j.ID).
		WithField("tx_id", rec.ID).
		Infof("payment of %.2f released", net)
	return j, nil
}

// DisputeInput carries a collector's dispute report.
type DisputeInput struct {
	Actor          string
	Reason         string
	ProposedAmount float64
}

// SubmitDispute moves a claimed or completed job into the disputed state and
// notifies the poster.
func (s *Service) SubmitDispute(ctx context.Context, id string, in DisputeInput) (job.Dispute, error) {
	in.Reason = strings.TrimSpace(in.Reason)
	if in.Reason == "" {
		return job.Dispute{}, validationErr("reason", "dispute reason is required")
	}
	if in.ProposedAmount <= 0 {
		return job.Dispute{}, validationErr("proposed_amount", "a proposed amount is required")
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	j, err := s.getJob(ctx, id)
	if err != nil {
		return job.Dispute{}, err
	}
	if !job.CanTransition(j.Status, job.StatusDisputed) {
		metrics.Transition("dispute", "invalid")
		return job.Dispute{}, transitionErr(id, j.Status, job.StatusDisputed)
	}
	if in.Actor != j.Collector {
		return job.Dispute{}, validationErr("actor", "only the collector may raise a dispute")
	}

	dispute := job.Dispute{
		Reason:         in.Reason,
		ProposedAmount: in.ProposedAmount,
		RaisedBy:       in.Actor,
		RaisedAt:       time.Now().UTC(),
	}
	j.Status = job.StatusDisputed
	j.Dispute = &dispute

	if _, err := s.stores.Jobs.UpdateJob(ctx, j); err != nil {
		return job.Dispute{}, fmt.Errorf("persist dispute: %w", err)
	}
	if err := s.recountActiveCollectors(ctx); err != nil {
		return job.Dispute{}, err
	}

	s.applyReputation(ctx, j.Poster, domidentity.EventDisputed)

	metrics.Transition("dispute", "ok")
	s.publish(events.Event{Type: events.TypeJobDisputed, JobID: j.ID, Address: j.Poster, Amount: in.ProposedAmount, Message: in.Reason})
	s.log.WithField("job_id", j.ID).WithField("raised_by", in.Actor).Warn("job disputed")
	return dispute, nil
}

// Get returns one job.
func (s *Service) Get(ctx context.Context, id string) (job.Job, error) {
	return s.getJob(ctx, id)
}

// List returns all jobs in creation order.
func (s *Service) List(ctx context.Context) ([]job.Job, error) {
	return s.stores.Jobs.ListJobs(ctx)
}

// Profile returns the activity profile for an address.
func (s *Service) Profile(ctx context.Context, address string) (user.Profile, error) {
	p, err := s.stores.Users.GetProfile(ctx, address)
	if errors.Is(err, storage.ErrNotFound) {
		return user.Profile{}, fmt.Errorf("profile %s: %w", address, ErrNotFound)
	}
	return p, err
}

// Stats returns the marketplace aggregate.
func (s *Service) Stats(ctx context.Context) (stats.Aggregate, error) {
	return s.stores.Stats.GetStats(ctx)
}

// Transactions returns the ledger log, optionally filtered by counterparty.
func (s *Service) Transactions(ctx context.Context, address string) ([]ledgertx.Record, error) {
	return s.stores.Transactions.ListTransactions(ctx, address)
}

// helpers ---------------------------------------------------------------------

func (s *Service) getJob(ctx context.Context, id string) (job.Job, error) {
	j, err := s.stores.Jobs.GetJob(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return job.Job{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return job.Job{}, err
	}
	return j, nil
}

func (s *Service) bumpProfile(ctx context.Context, address string, mutate func(*user.Profile)) error {
	p, err := s.stores.Users.GetProfile(ctx, address)
	if errors.Is(err, storage.ErrNotFound) {
		p = user.Profile{Address: address, Reputation: domidentity.InitialReputation}
	} else if err != nil {
		return err
	}
	mutate(&p)
	if _, err := s.stores.Users.UpsertProfile(ctx, p); err != nil {
		return fmt.Errorf("persist profile %s: %w", address, err)
	}
	return nil
}

func (s *Service) bumpStats(ctx context.Context, mutate func(*stats.Aggregate)) error {
	agg, err := s.stores.Stats.GetStats(ctx)
	if err != nil {
		return err
	}
	mutate(&agg)
	if _, err := s.stores.Stats.PutStats(ctx, agg); err != nil {
		return fmt.Errorf("persist stats: %w", err)
	}
	return nil
}

// recountActiveCollectors keeps the aggregate's collector count consistent
// with the number of distinct collectors holding claimed jobs.
func (s *Service) recountActiveCollectors(ctx context.Context) error {
	all, err := s.stores.Jobs.ListJobs(ctx)
	if err != nil {
		return err
	}
	active := make(map[string]struct{})
	for _, j := range all {
		if j.Status == job.StatusClaimed {
			active[j.Collector] = struct{}{}
		}
	}
	return s.bumpStats(ctx, func(agg *stats.Aggregate) { agg.ActiveCollectors = len(active) })
}

// applyReputation mirrors the registry score into the user profile. Failures
// are logged, not surfaced: reputation is advisory and must not roll back a
// committed transition.
func (s *Service) applyReputation(ctx context.Context, address string, event domidentity.Event) {
	if _, err := s.identity.EnsureIdentity(ctx, address); err != nil {
		s.log.WithError(err).Warnf("identity upsert for %s failed", address)
		return
	}
	score, err := s.identity.UpdateReputation(ctx, address, event)
	if err != nil {
		s.log.WithError(err).Warnf("reputation update (%s) for %s failed", event, address)
		return
	}
	if err := s.bumpProfile(ctx, address, func(p *user.Profile) { p.Reputation = score }); err != nil {
		s.log.WithError(err).Warnf("profile reputation sync for %s failed", address)
	}
}

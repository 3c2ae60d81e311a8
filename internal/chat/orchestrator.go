package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"vendor-chat-backend/internal/compose"
	"vendor-chat-backend/internal/intent"
	"vendor-chat-backend/internal/stream"
	"vendor-chat-backend/internal/types"
	"vendor-chat-backend/internal/vendor"
)

const (
	guideBucketSize = 3
	reviewLimit     = 5
	browseLimit     = 12
)

type Moderator interface {
	Moderate(ctx context.Context, text string) (bool, error)
}

// GeneralResponder streams a free-form reply for non-vendor conversation.
type GeneralResponder interface {
	StreamChat(ctx context.Context, history []types.ChatMessage, onDelta func(string) error) error
}

// Store is the relational surface the sub-flows use on top of what the
// resolver needs.
type Store interface {
	vendor.Store
	VendorsByCategory(ctx context.Context, category, locality string, limit int) ([]vendor.VendorRecord, error)
	GuideBucket(ctx context.Context, category string, bucket vendor.Bucket, limit int) ([]vendor.VendorRecord, error)
	ReviewsForVendor(ctx context.Context, vendorID string, limit int) ([]vendor.Review, error)
}

type Options struct {
	Classifier *intent.Classifier
	Resolver   *vendor.Resolver
	Composer   *compose.Composer
	// Optional collaborators. A nil Store skips the relational browse, guide
	// and review queries; a nil Moderator lets everything through.
	Store     Store
	Moderator Moderator
	General   GeneralResponder
	// InlineHits also writes the vendor_hits payload into the text between
	// sentinel markers.
	InlineHits bool
	Logger     zerolog.Logger
}

// Orchestrator is built once per process and shared by every request. It
// holds no per-request state.
type Orchestrator struct {
	classifier *intent.Classifier
	resolver   *vendor.Resolver
	composer   *compose.Composer
	store      Store
	moderator  Moderator
	general    GeneralResponder
	inlineHits bool
	denial     string
	logger     zerolog.Logger
	newID      func() string
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		classifier: opts.Classifier,
		resolver:   opts.Resolver,
		composer:   opts.Composer,
		store:      opts.Store,
		moderator:  opts.Moderator,
		general:    opts.General,
		inlineHits: opts.InlineHits,
		logger:     opts.Logger,
		newID:      uuid.NewString,
	}
	if o.classifier == nil {
		o.classifier = intent.NewClassifier(intent.DefaultLexicon())
	}
	if o.resolver == nil {
		o.resolver = vendor.NewResolver(nil, opts.Store, nil)
	}
	if o.composer == nil {
		o.composer = compose.New()
	}
	o.denial = o.classifier.Lexicon().DenialMessage
	return o
}

// requestLogger prefers the logger attached to ctx by the HTTP layer, which
// carries the request and session ids.
func (o *Orchestrator) requestLogger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &o.logger
}

// Handle answers the latest user message in msgs on w. Unless writing to w
// fails, the stream is always closed with text-end and finish, whatever
// happens in between. The returned error is a write failure or
// ErrNoUserText; collaborator and flow failures are answered in the stream.
func (o *Orchestrator) Handle(ctx context.Context, msgs []types.ChatMessage, w stream.Writer) error {
	text, ok := LatestUserText(msgs)
	if !ok {
		return ErrNoUserText
	}
	started := time.Now()

	if err := w.Start(o.newID()); err != nil {
		return err
	}
	tw := &textWriter{w: w, id: o.newID()}
	if err := w.TextStart(tw.id); err != nil {
		return err
	}

	var reply compose.Reply
	route := intent.RouteGeneral
	if o.flagged(ctx, text) {
		reply = compose.Reply{Text: o.denial}
	} else {
		c := o.classifier.Classify(text)
		route = c.Route
		var err error
		reply, err = o.run(ctx, c, text, msgs, tw)
		if err != nil {
			if tw.err != nil {
				return tw.err
			}
			o.requestLogger(ctx).Error().Err(err).Str("route", string(c.Route)).Msg("chat flow failed")
			reply = compose.Reply{Text: compose.Apology}
			if tw.n > 0 {
				reply.Text = "\n\n" + compose.Apology
			}
		}
	}

	if err := o.emit(ctx, tw, reply); err != nil {
		return err
	}
	if err := w.TextEnd(tw.id); err != nil {
		return err
	}
	if reply.Tool != "" {
		if err := w.ToolResult(reply.Tool, reply.Payload); err != nil {
			o.requestLogger(ctx).Warn().Err(err).Str("tool", reply.Tool).Msg("failed to send tool result")
			if ctx.Err() != nil {
				return err
			}
		}
	}
	if err := w.Finish(); err != nil {
		return err
	}
	o.requestLogger(ctx).Info().
		Str("route", string(route)).
		Dur("duration", time.Since(started)).
		Msg("chat turn answered")
	return nil
}

// flagged fails open: a moderation error lets the text through.
func (o *Orchestrator) flagged(ctx context.Context, text string) bool {
	if o.moderator == nil {
		return false
	}
	flagged, err := o.moderator.Moderate(ctx, text)
	if err != nil {
		o.requestLogger(ctx).Warn().Err(err).Msg("moderation failed, continuing")
		return false
	}
	if flagged {
		o.requestLogger(ctx).Info().Msg("message flagged by moderation")
	}
	return flagged
}

// run dispatches to the sub-flow for the route. A panic inside a flow is
// returned as an error so the stream can still be closed.
func (o *Orchestrator) run(ctx context.Context, c intent.Classification, text string, msgs []types.ChatMessage, tw *textWriter) (reply compose.Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chat: %s flow panicked: %v", c.Route, r)
		}
	}()
	o.requestLogger(ctx).Debug().
		Str("route", string(c.Route)).
		Str("category", c.Category).
		Str("locality", c.Locality).
		Str("vendor", c.VendorName).
		Msg("classified")

	switch c.Route {
	case intent.RouteGuide:
		return o.guide(ctx, c), nil
	case intent.RouteDetails:
		return o.details(ctx, c), nil
	case intent.RouteReviews:
		return o.reviews(ctx, c), nil
	case intent.RouteSearch:
		return o.search(ctx, c, text), nil
	default:
		return compose.Reply{}, o.generalChat(ctx, msgs, tw)
	}
}

func (o *Orchestrator) generalChat(ctx context.Context, msgs []types.ChatMessage, tw *textWriter) error {
	if o.general == nil {
		return errors.New("chat: no general responder configured")
	}
	if err := o.general.StreamChat(ctx, msgs, tw.write); err != nil {
		return err
	}
	if tw.n == 0 {
		return errEmptyGeneral
	}
	return nil
}

// guide queries the four buckets concurrently. A failed or panicking bucket
// query leaves that bucket empty.
func (o *Orchestrator) guide(ctx context.Context, c intent.Classification) compose.Reply {
	results := make([][]vendor.VendorRecord, len(vendor.GuideBuckets))
	if o.store != nil {
		g, gctx := errgroup.WithContext(ctx)
		for i, bucket := range vendor.GuideBuckets {
			i, bucket := i, bucket
			g.Go(func() error {
				defer func() {
					if r := recover(); r != nil {
						o.requestLogger(ctx).Error().Interface("panic", r).Str("bucket", string(bucket)).Msg("guide bucket query panicked")
					}
				}()
				rows, err := o.store.GuideBucket(gctx, c.Category, bucket, guideBucketSize)
				if err != nil {
					o.requestLogger(ctx).Warn().Err(err).Str("bucket", string(bucket)).Msg("guide bucket query failed")
					return nil
				}
				results[i] = rows
				return nil
			})
		}
		_ = g.Wait()
	}
	buckets := make(map[vendor.Bucket][]vendor.VendorRecord, len(results))
	for i, bucket := range vendor.GuideBuckets {
		buckets[bucket] = results[i]
	}
	return o.composer.Guide(ctx, c.Category, buckets)
}

func (o *Orchestrator) details(ctx context.Context, c intent.Classification) compose.Reply {
	if c.VendorName == "" {
		return o.composer.ClarifyDetails()
	}
	if v := o.resolver.ResolveOne(ctx, c.VendorName); v != nil {
		return o.composer.Details(ctx, *v)
	}
	return o.composer.WebFallback(c.VendorName, o.resolver.Web(ctx, c.VendorName+" wedding vendor Mumbai"))
}

func (o *Orchestrator) reviews(ctx context.Context, c intent.Classification) compose.Reply {
	if c.VendorName == "" {
		return o.composer.ClarifyReviews()
	}
	v := o.resolver.ResolveOne(ctx, c.VendorName)
	if v == nil {
		return o.composer.WebFallback(c.VendorName, o.resolver.Web(ctx, c.VendorName+" reviews"))
	}
	var reviews []vendor.Review
	if o.store != nil {
		var err error
		reviews, err = o.store.ReviewsForVendor(ctx, v.ID, reviewLimit)
		if err != nil {
			o.requestLogger(ctx).Warn().Err(err).Str("vendor_id", v.ID).Msg("review lookup failed")
		}
	}
	return o.composer.Reviews(ctx, *v, reviews)
}

// search runs the vector and relational tiers, falling back to a relational
// browse of the category when they find nothing in that category.
func (o *Orchestrator) search(ctx context.Context, c intent.Classification, text string) compose.Reply {
	hits := vendor.InCategory(o.resolver.Lookup(ctx, vendor.VectorQuery{Text: text, Category: c.Category}), c.Category)
	if len(hits) == 0 && o.store != nil && c.Category != "" {
		rows, err := o.store.VendorsByCategory(ctx, c.Category, c.Locality, browseLimit)
		if err != nil {
			o.requestLogger(ctx).Warn().Err(err).Str("category", c.Category).Msg("relational browse failed")
		}
		for _, r := range rows {
			hits = append(hits, vendor.MergedHit{VendorRecord: r, Enriched: true})
		}
	}
	shortlist, relaxed := vendor.ShortlistBudget(hits, c.Budget)
	q := compose.Query{Text: text, Category: c.Category, Locality: c.Locality, Budget: c.Budget}
	return o.composer.Shortlist(q, shortlist, relaxed)
}

// emit writes the reply prose one paragraph per delta, followed by the
// inlined payload when that mode is on.
func (o *Orchestrator) emit(ctx context.Context, tw *textWriter, reply compose.Reply) error {
	for _, chunk := range paragraphs(reply.Text) {
		if err := tw.write(chunk); err != nil {
			return err
		}
	}
	if o.inlineHits && reply.Tool == stream.ToolVendorHits {
		inline, err := compose.InlineHits(reply.Payload)
		if err != nil {
			o.requestLogger(ctx).Warn().Err(err).Msg("failed to inline vendor hits")
			return nil
		}
		return tw.write(inline)
	}
	return nil
}

// paragraphs splits text after each blank line, keeping the separators so
// the chunks concatenate back to the input.
func paragraphs(text string) []string {
	var out []string
	for text != "" {
		i := strings.Index(text, "\n\n")
		if i < 0 {
			out = append(out, text)
			break
		}
		out = append(out, text[:i+2])
		text = text[i+2:]
	}
	return out
}

// textWriter counts what reached the client and remembers the first write
// error, so a flow failure can be told apart from a disconnected client.
var errEmptyGeneral = errors.New("chat: general responder produced no text")

type textWriter struct {
	w   stream.Writer
	id  string
	n   int
	err error
}

func (t *textWriter) write(delta string) error {
	if t.err != nil {
		return t.err
	}
	if delta == "" {
		return nil
	}
	if err := t.w.TextDelta(t.id, delta); err != nil {
		t.err = err
		return err
	}
	t.n += len(delta)
	return nil
}

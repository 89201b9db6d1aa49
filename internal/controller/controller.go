// Package controller runs one conversation turn at a time: it classifies the
// message, optionally consults the document index, negotiates constraints
// through the inference chain and composes the reply.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/jewelbot/internal/catalog"
	"github.com/ChamsBouzaiene/jewelbot/internal/config"
	"github.com/ChamsBouzaiene/jewelbot/internal/diagnose"
	"github.com/ChamsBouzaiene/jewelbot/internal/engine"
	"github.com/ChamsBouzaiene/jewelbot/internal/gallery"
	"github.com/ChamsBouzaiene/jewelbot/internal/inference"
	"github.com/ChamsBouzaiene/jewelbot/internal/knowledge"
	"github.com/ChamsBouzaiene/jewelbot/internal/memory"
	"github.com/ChamsBouzaiene/jewelbot/internal/oracle"
	"github.com/ChamsBouzaiene/jewelbot/internal/session"
	"go.uber.org/zap"
)

// Fixed reply texts.
const (
	GreetingText = "Hello! I am your Jewelry Assistant. I can help you find the perfect ring, necklace, or answer questions about gemstones. How can I help you today?"
	RefusalText  = "I apologize, but I am specialized in jewelry. I cannot help with that topic. Would you like to see some rings instead?"
	RetryText    = "Sorry, something went wrong on our side. Please try again."
)

var (
	// ErrEmptyMessage is returned for input with neither text nor images.
	ErrEmptyMessage = errors.New("message has no text or images")
	// ErrMissingSession is returned when no session id is given.
	ErrMissingSession = errors.New("session id is required")
)

// Input is one user message.
type Input struct {
	Text   string
	Images []string
}

// Reply is the agent's answer to one turn.
type Reply struct {
	Text   string   `json:"text"`
	Images []string `json:"images"`
}

// Config tunes a Controller. Zero fields take defaults.
type Config struct {
	OracleTimeout time.Duration // per oracle call; default 30s
	GalleryLimit  int           // default gallery.DefaultLimit
	SearchLimit   int           // products in a final reply; default 5
	RetrievalK    int           // document pages per retrieval; default 1
}

func (c Config) withDefaults() Config {
	if c.OracleTimeout <= 0 {
		c.OracleTimeout = engine.DefaultOracleTimeout
	}
	if c.GalleryLimit <= 0 {
		c.GalleryLimit = gallery.DefaultLimit
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = 5
	}
	if c.RetrievalK <= 0 {
		c.RetrievalK = 1
	}
	return c
}

// Deps are the collaborators of a Controller. Retriever, Hook and Logger may be nil.
type Deps struct {
	Oracles   oracle.Suite
	Catalog   catalog.Catalog
	Store     session.Store
	Knowledge *config.Knowledge
	Retriever knowledge.Retriever
	Sampler   *gallery.Sampler
	Hook      Hook
	Logger    *zap.Logger
}

// Controller is the conversation engine. It is safe for concurrent use;
// turns of the same session are serialized.
type Controller struct {
	cfg       Config
	oracles   oracle.Suite
	catalog   catalog.Catalog
	store     session.Store
	knowledge *config.Knowledge
	retriever knowledge.Retriever
	sampler   *gallery.Sampler
	relaxer   *diagnose.Relaxer
	chain     *inference.Chain
	compactor *memory.Compactor
	hook      Hook
	logger    *zap.Logger
	locks     *keyedLocks
}

// New creates a controller.
func New(deps Deps, cfg Config) (*Controller, error) {
	if deps.Oracles.Extractor == nil || deps.Oracles.Captioner == nil || deps.Oracles.Summarizer == nil || deps.Oracles.Writer == nil {
		return nil, fmt.Errorf("controller needs a complete oracle suite")
	}
	if deps.Catalog == nil || deps.Store == nil || deps.Knowledge == nil {
		return nil, fmt.Errorf("controller needs a catalog, a session store and domain knowledge")
	}
	cfg = cfg.withDefaults()

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	hook := deps.Hook
	if hook == nil {
		hook = NopHook{}
	}
	sampler := deps.Sampler
	if sampler == nil {
		sampler = gallery.NewSampler(deps.Catalog, nil)
	}

	return &Controller{
		cfg:       cfg,
		oracles:   deps.Oracles,
		catalog:   deps.Catalog,
		store:     deps.Store,
		knowledge: deps.Knowledge,
		retriever: deps.Retriever,
		sampler:   sampler,
		relaxer:   diagnose.NewRelaxer(deps.Catalog, 0),
		chain:     inference.NewChain(inference.NewStep(deps.Oracles.Extractor, deps.Catalog, cfg.OracleTimeout)),
		compactor: memory.NewCompactor(deps.Oracles.Captioner, deps.Oracles.Summarizer, memory.WithTimeout(cfg.OracleTimeout)),
		hook:      hook,
		logger:    logger,
		locks:     newKeyedLocks(),
	}, nil
}

func (c *Controller) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.OracleTimeout)
}

// RunTurn processes one user message. On any error the stored session is left
// exactly as it was before the call.
func (c *Controller) RunTurn(ctx context.Context, sessionID string, in Input) (Reply, error) {
	reply, err := c.runTurn(ctx, sessionID, in)
	if err != nil {
		c.hook.OnTurnError(ctx, sessionID, err)
	}
	return reply, err
}

func (c *Controller) runTurn(ctx context.Context, sessionID string, in Input) (Reply, error) {
	if sessionID == "" {
		return Reply{}, ErrMissingSession
	}
	if strings.TrimSpace(in.Text) == "" && len(in.Images) == 0 {
		return Reply{}, ErrEmptyMessage
	}

	release, err := c.locks.Lock(ctx, sessionID)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to acquire session %s: %w", sessionID, err)
	}
	defer release()

	stored, err := c.store.Load(ctx, sessionID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		stored = session.New(sessionID)
	case err != nil:
		return Reply{}, fmt.Errorf("failed to load session: %w", err)
	}

	s := stored.Clone()
	s.Append(session.NewTurn(session.RoleUser, in.Text, in.Images))
	if _, err := c.compactor.Sanitize(ctx, s); err != nil {
		return Reply{}, err
	}

	m := newMachine(sessionID, c.hook)
	reply, err := c.respond(ctx, m, s)
	if err != nil {
		return Reply{}, err
	}
	s.Append(session.NewTurn(session.RoleAgent, reply.Text, reply.Images))

	if err := m.advance(ctx, StateCompact); err != nil {
		return Reply{}, err
	}
	rep, err := c.compactor.Compact(ctx, s)
	if err != nil {
		return Reply{}, err
	}
	c.hook.OnCompaction(ctx, sessionID, rep)
	if err := m.advance(ctx, StateEnd); err != nil {
		return Reply{}, err
	}

	if err := c.store.Save(ctx, s); err != nil {
		return Reply{}, fmt.Errorf("failed to save session: %w", err)
	}
	return reply, nil
}

// respond walks the graph from Start to one of the response states.
func (c *Controller) respond(ctx context.Context, m *machine, s *session.Session) (Reply, error) {
	if err := m.advance(ctx, StateRelevanceCheck); err != nil {
		return Reply{}, err
	}
	oc := oracle.ContextFrom(s, nil)

	callCtx, cancel := c.bounded(ctx)
	relevance, err := c.oracles.Extractor.ClassifyRelevance(callCtx, oc)
	cancel()
	if err != nil {
		return Reply{}, engine.External("classify_relevance", err)
	}

	switch relevance {
	case oracle.Greeting:
		if err := m.advance(ctx, StateGreeting); err != nil {
			return Reply{}, err
		}
		return Reply{Text: GreetingText}, nil
	case oracle.NotRelated:
		if err := m.advance(ctx, StateRefusal); err != nil {
			return Reply{}, err
		}
		return Reply{Text: RefusalText}, nil
	case oracle.Related:
	default:
		return Reply{}, engine.Violation("controller", "unknown relevance category %q", relevance)
	}

	if err := m.advance(ctx, StateKnowledgeDecision); err != nil {
		return Reply{}, err
	}
	pages, err := c.consultDocuments(ctx, m, oc)
	if err != nil {
		return Reply{}, err
	}

	if err := m.advance(ctx, StateInfer); err != nil {
		return Reply{}, err
	}
	oc.Pages = pages

	domains, err := inference.BuildDomains(ctx, c.knowledge, c.catalog)
	if err != nil {
		return Reply{}, engine.External("catalog_options", err)
	}
	attributes := make([]string, len(domains))
	for i, d := range domains {
		attributes[i] = d.Name
	}
	m.plan(attributes)
	res, err := c.chain.Run(ctx, s, oc, domains, inference.Observer{
		Enter: func(ctx context.Context, attribute string) error {
			return m.advance(ctx, InferState(attribute))
		},
		Outcome: func(ctx context.Context, out inference.Outcome) {
			c.hook.OnOutcome(ctx, s.ID, out)
		},
	})
	if err != nil {
		return Reply{}, err
	}
	s.InferenceStatus = res.Status
	s.NodeName = res.Halted.Attribute
	s.Reasoning = res.Halted.Reasoning
	oc.Constraints = s.Constraints

	switch res.Status {
	case session.StatusNoPreference:
		if err := m.advance(ctx, StateNoPreferenceResponse); err != nil {
			return Reply{}, err
		}
		return c.noPreferenceReply(ctx, s, oc, domains, res.Halted)
	case session.StatusConflict:
		if err := m.advance(ctx, StateConflictResponse); err != nil {
			return Reply{}, err
		}
		return c.conflictReply(ctx, s, oc, res.Halted)
	case session.StatusResolved:
		if err := m.advance(ctx, StateFinalResponse); err != nil {
			return Reply{}, err
		}
		return c.finalReply(ctx, s, oc)
	}
	return Reply{}, engine.Violation("controller", "unknown chain status %q", res.Status)
}

// consultDocuments asks whether the message needs document knowledge and, if
// so, retrieves pages for a rewritten query.
func (c *Controller) consultDocuments(ctx context.Context, m *machine, oc oracle.Context) ([]string, error) {
	if c.retriever == nil {
		return nil, nil
	}
	callCtx, cancel := c.bounded(ctx)
	needed, err := c.oracles.Extractor.DecideRetrieval(callCtx, oc)
	cancel()
	if err != nil {
		return nil, engine.External("decide_retrieval", err)
	}
	if !needed {
		return nil, nil
	}
	if err := m.advance(ctx, StateRetrieve); err != nil {
		return nil, err
	}

	callCtx, cancel = c.bounded(ctx)
	query, err := c.oracles.Writer.KnowledgeQuery(callCtx, oc)
	cancel()
	if err != nil {
		return nil, engine.External("knowledge_query", err)
	}

	callCtx, cancel = c.bounded(ctx)
	refs, err := c.retriever.Retrieve(callCtx, query, c.cfg.RetrievalK)
	cancel()
	if err != nil {
		return nil, engine.External("retrieve", err)
	}
	pages := make([]string, 0, len(refs))
	for _, ref := range refs {
		pages = append(pages, fmt.Sprintf("[%s] %s", ref.Ref, ref.Text))
	}
	c.logger.Debug("retrieved pages", zap.String("query", query), zap.Int("pages", len(pages)))
	return pages, nil
}

func (c *Controller) noPreferenceReply(ctx context.Context, s *session.Session, oc oracle.Context, domains []oracle.Domain, halted inference.Outcome) (Reply, error) {
	d, ok := inference.Domain(domains, halted.Attribute)
	if !ok {
		return Reply{}, engine.Violation("controller", "chain halted on unknown attribute %q", halted.Attribute)
	}
	upstream := s.Constraints.FilterOf(d.DependsOn...)

	callCtx, cancel := c.bounded(ctx)
	items, err := c.sampler.Sample(callCtx, d.Name, d.Options, upstream, c.cfg.GalleryLimit)
	cancel()
	if err != nil {
		return Reply{}, engine.External("gallery_sample", err)
	}

	callCtx, cancel = c.bounded(ctx)
	text, err := c.oracles.Writer.NoPreference(callCtx, oc, d.Name, items)
	cancel()
	if err != nil {
		return Reply{}, engine.External("write_no_preference", err)
	}
	return Reply{Text: text, Images: gallery.Images(items)}, nil
}

func (c *Controller) conflictReply(ctx context.Context, s *session.Session, oc oracle.Context, halted inference.Outcome) (Reply, error) {
	active := s.Constraints.Clone()
	active[halted.Attribute] = halted.Constraint
	f := active.Filter()

	callCtx, cancel := c.bounded(ctx)
	report, err := c.relaxer.Diagnose(callCtx, f)
	cancel()
	if err != nil {
		return Reply{}, err
	}
	c.hook.OnDiagnostics(ctx, s.ID, f, report)

	brief := oracle.ConflictBrief{
		Attribute:   halted.Attribute,
		Values:      halted.Rejected(),
		Reasoning:   halted.Reasoning,
		Constraints: s.Constraints,
		Suggestions: report.Suggestions(),
	}
	callCtx, cancel = c.bounded(ctx)
	text, err := c.oracles.Writer.Conflict(callCtx, oc, brief)
	cancel()
	if err != nil {
		return Reply{}, engine.External("write_conflict", err)
	}
	return Reply{Text: text}, nil
}

func (c *Controller) finalReply(ctx context.Context, s *session.Session, oc oracle.Context) (Reply, error) {
	callCtx, cancel := c.bounded(ctx)
	query, err := c.oracles.Writer.CatalogQuery(callCtx, oc)
	cancel()
	if err != nil {
		return Reply{}, engine.External("catalog_query", err)
	}

	callCtx, cancel = c.bounded(ctx)
	products, err := c.catalog.Search(callCtx, s.Constraints.Filter(), query, c.cfg.SearchLimit)
	cancel()
	if err != nil {
		return Reply{}, engine.External("catalog_search", err)
	}

	callCtx, cancel = c.bounded(ctx)
	text, err := c.oracles.Writer.Final(callCtx, oc, products)
	cancel()
	if err != nil {
		return Reply{}, engine.External("write_final", err)
	}

	images := make([]string, 0, len(products))
	for _, p := range products {
		if p.ImageURL != "" {
			images = append(images, p.ImageURL)
		}
	}
	return Reply{Text: text, Images: images}, nil
}

// Reset forgets a session. It waits for any running turn of that session.
func (c *Controller) Reset(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrMissingSession
	}
	release, err := c.locks.Lock(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to acquire session %s: %w", sessionID, err)
	}
	defer release()

	if err := c.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	c.logger.Info("🧹 session reset", zap.String("session_id", sessionID))
	return nil
}

// Session returns the stored state of a session.
func (c *Controller) Session(ctx context.Context, sessionID string) (*session.Session, error) {
	return c.store.Load(ctx, sessionID)
}

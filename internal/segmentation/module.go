// Package segmentation provides the segmentation bounded context module:
// behavioral rules over profile store aggregates, materialized as CRM
// segment membership by an inline trigger and a batch sync.
package segmentation

import (
	"segmentation_backend/internal/adapters/storage"
	apphttp "segmentation_backend/internal/http"
	"segmentation_backend/internal/mautic"
	"segmentation_backend/internal/segmentation/aggregates"
	"segmentation_backend/internal/segmentation/crm"
	"segmentation_backend/internal/segmentation/handler"
	"segmentation_backend/internal/segmentation/repository"
	"segmentation_backend/internal/segmentation/rules"
	"segmentation_backend/internal/segmentation/service"
	"segmentation_backend/internal/unomi"
	"segmentation_backend/platform/config"
	"segmentation_backend/platform/logger"
	"segmentation_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// reportPrefix is the object key prefix for archived batch reports.
const reportPrefix = "sync-runs"

// ModuleConfig combines the config interfaces the module reads.
type ModuleConfig interface {
	config.ProfileStoreConfig
	config.CRMConfig
	config.SegmentationConfig
}

// Module is the segmentation bounded context module implementing http.Module.
type Module struct {
	handler      *handler.Handler
	service      *service.Service
	orchestrator *service.Orchestrator
	rules        *rules.RuleSet
	repo         *repository.Repo
}

// NewModule creates and initializes the segmentation module. storageSvc and
// lock are optional: without storage, reports are only kept in the database;
// without a lock, single-flight is enforced per process only.
func NewModule(pool *pgxpool.Pool, cfg ModuleConfig, storageSvc storage.StorageService, bucket string, lock service.RunLock, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)

	profileStore := unomi.New(cfg, log)
	crmClient := mautic.New(cfg, log)

	reader := aggregates.New(profileStore, cfg.GetProfilePageSize(), cfg.GetInactivityWindow(), log)
	ruleSet := rules.New(rules.SettingsFromConfig(cfg))
	gate := rules.NewGate(ruleSet, cfg.GetRuleTriggerMode(), repo)
	upserter := crm.NewUpserter(crmClient, log)
	assigner := crm.NewAssigner(crmClient, log)

	var archive *service.ReportArchive
	if storageSvc != nil && bucket != "" {
		archive = service.NewReportArchive(storageSvc, bucket, reportPrefix)
	}

	opts := []service.OrchestratorOption{service.WithRunStore(repo)}
	if archive != nil {
		opts = append(opts, service.WithReportArchive(archive))
	}
	if lock != nil {
		opts = append(opts, service.WithRunLock(lock))
	}

	orchestrator := service.NewOrchestrator(reader, ruleSet, gate, upserter, assigner, cfg.GetSyncConcurrency(), log, opts...)
	trigger := service.NewTrigger(reader, repo, ruleSet, gate, upserter, assigner, log)
	svc := service.New(trigger, orchestrator, reader, profileStore, repo, archive, log)

	log.Info("segmentation module initialized",
		"ruleMode", gate.Mode(),
		"syncConcurrency", cfg.GetSyncConcurrency(),
		"reportArchive", archive != nil,
	)

	return &Module{
		handler:      handler.New(svc, val),
		service:      svc,
		orchestrator: orchestrator,
		rules:        ruleSet,
		repo:         repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "segmentation"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// Orchestrator returns the batch orchestrator for schedulers and the CLI.
func (m *Module) Orchestrator() *service.Orchestrator {
	return m.orchestrator
}

// Rules returns the rule catalogue.
func (m *Module) Rules() *rules.RuleSet {
	return m.rules
}

// Repository returns the repository for direct access if needed.
func (m *Module) Repository() *repository.Repo {
	return m.repo
}

// RegisterRoutes mounts segmentation routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Per-action endpoints called by the frontend
	public := ctx.V1.Group("/segmentation")
	if ctx.TriggerRateLimiter != nil {
		public.Use(ctx.TriggerRateLimiter.RateLimit())
	}
	public.POST("/check-clicks", m.handler.CheckClicks)
	public.POST("/track", m.handler.Track)

	ctx.Protected.GET("/segmentation/active-profiles", m.handler.ActiveProfiles)

	adminGroup := ctx.Admin.Group("/segmentation")
	adminGroup.POST("/sync", m.handler.RequestSync)
	adminGroup.GET("/runs/:id", m.handler.GetRun)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)

package provider

import (
	"time"

	"github.com/promo-next/internal/authz"
	"github.com/promo-next/internal/cache"
	"github.com/promo-next/internal/config"
	"github.com/promo-next/internal/discount"
	"github.com/promo-next/internal/lock"
	"github.com/promo-next/internal/logger"
	"github.com/promo-next/internal/models"
	"github.com/promo-next/internal/queue"
	"github.com/promo-next/internal/repository"
	"github.com/promo-next/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	AdminRepo             repository.AdminRepository
	CouponRepo            repository.CouponRepository
	UserCouponRepo        repository.UserCouponRepository
	ExchangeCodeRepo      repository.ExchangeCodeRepository
	ExchangeCodeBatchRepo repository.ExchangeCodeBatchRepository

	// Infrastructure
	ClaimStore     *cache.ClaimStore
	CodeVault      *cache.CodeVault
	Locker         *lock.Locker
	DiscountEngine *discount.Engine

	// Services
	AuthzService       *authz.Service
	AuthService        *service.AuthService
	CouponAdminService *service.CouponAdminService
	UserCouponService  *service.UserCouponService
	SettlementService  *service.SettlementService
	DiscountService    *service.DiscountService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化基础设施
	c.initInfrastructure()

	// 3. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.AdminRepo = repository.NewAdminRepository(db)
	c.CouponRepo = repository.NewCouponRepository(db)
	c.UserCouponRepo = repository.NewUserCouponRepository(db)
	c.ExchangeCodeRepo = repository.NewExchangeCodeRepository(db)
	c.ExchangeCodeBatchRepo = repository.NewExchangeCodeBatchRepository(db)
}

func (c *Container) initInfrastructure() {
	client := cache.Client()
	c.ClaimStore = cache.NewClaimStore(client)
	c.CodeVault = cache.NewCodeVault(client)
	c.Locker = lock.NewLocker(
		client,
		c.Config.Redis.Prefix,
		time.Duration(c.Config.Lock.WaitMS)*time.Millisecond,
		time.Duration(c.Config.Lock.LeaseMS)*time.Millisecond,
	)
	c.DiscountEngine = discount.NewEngine(c.Config.Promotion.SolutionWorkers)
}

func (c *Container) initServices() {
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}

	c.AuthService = service.NewAuthService(c.Config, c.AdminRepo)
	c.CouponAdminService = service.NewCouponAdminService(
		c.CouponRepo,
		c.ExchangeCodeRepo,
		c.ExchangeCodeBatchRepo,
		c.ClaimStore,
		c.QueueClient,
	)
	c.UserCouponService = service.NewUserCouponService(
		c.CouponRepo,
		c.UserCouponRepo,
		c.ExchangeCodeRepo,
		c.ClaimStore,
		c.CodeVault,
		c.Locker,
		c.QueueClient,
	)
	c.SettlementService = service.NewSettlementService(
		models.DB,
		c.CouponRepo,
		c.UserCouponRepo,
		c.ExchangeCodeRepo,
		c.ExchangeCodeBatchRepo,
		c.CodeVault,
		c.Locker,
		c.Config.Promotion.CodeBatchSize,
	)
	c.DiscountService = service.NewDiscountService(c.CouponRepo, c.UserCouponRepo, c.DiscountEngine)
}

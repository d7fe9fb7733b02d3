package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"settlement_service/config"
	"settlement_service/internal/account"
	"settlement_service/internal/agentlevel"
	"settlement_service/internal/commission"
	"settlement_service/internal/gamefeed"
	"settlement_service/internal/gate"
	"settlement_service/internal/kiosk"
	"settlement_service/internal/ledger"
	"settlement_service/internal/payout"
	"settlement_service/internal/promotion"
	"settlement_service/internal/rebate"
	"settlement_service/internal/scheduler"
	"settlement_service/internal/vip"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func defaultVIPTiers() []vip.Tier {
	pct := func(s string) decimal.Decimal { d, _ := decimal.NewFromString(s); return d }
	return []vip.Tier{
		{Level: 0, Name: "Bronze", Threshold: decimal.Zero, WithdrawalLimit: 1,
			RebatePercents: map[string]decimal.Decimal{"slots": pct("0.002")}},
		{Level: 1, Name: "Silver", Threshold: decimal.NewFromInt(10000), WithdrawalLimit: 2,
			RebatePercents: map[string]decimal.Decimal{"slots": pct("0.004"), "live": pct("0.002")}},
		{Level: 2, Name: "Gold", Threshold: decimal.NewFromInt(50000), WithdrawalLimit: 3,
			RebatePercents: map[string]decimal.Decimal{"slots": pct("0.006"), "live": pct("0.004"), "sports": pct("0.002")}},
		{Level: 3, Name: "Platinum", Threshold: decimal.NewFromInt(200000), WithdrawalLimit: 5,
			RebatePercents: map[string]decimal.Decimal{"slots": pct("0.008"), "live": pct("0.006"), "sports": pct("0.004")}},
		{Level: 4, Name: "Diamond", Threshold: decimal.NewFromInt(1000000), WithdrawalLimit: 0,
			RebatePercents: map[string]decimal.Decimal{"slots": pct("0.01"), "live": pct("0.008"), "sports": pct("0.006")}},
	}
}

func defaultAgentLevels() []agentlevel.Requirement {
	return []agentlevel.Requirement{
		{Level: 1, RequiredVIPLevel: 1, RequiredCount: 3, Bonus: decimal.NewFromInt(100)},
		{Level: 2, RequiredVIPLevel: 2, RequiredCount: 3, Bonus: decimal.NewFromInt(300)},
		{Level: 3, RequiredVIPLevel: 2, RequiredCount: 5, Bonus: decimal.NewFromInt(800)},
		{Level: 4, RequiredVIPLevel: 3, RequiredCount: 5, Bonus: decimal.NewFromInt(2000)},
		{Level: 5, RequiredVIPLevel: 4, RequiredCount: 5, Bonus: decimal.NewFromInt(5000)},
	}
}

func defaultLevelRates() map[int]map[string]decimal.Decimal {
	pct := func(s string) decimal.Decimal { d, _ := decimal.NewFromString(s); return d }
	return map[int]map[string]decimal.Decimal{
		1: {"slots": pct("0.01"), "live": pct("0.008"), "sports": pct("0.006")},
		2: {"slots": pct("0.004"), "live": pct("0.003"), "sports": pct("0.002")},
		3: {"slots": pct("0.002"), "live": pct("0.001"), "sports": pct("0.001")},
	}
}

func mustDecimal(s string, fallback string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		d, _ = decimal.NewFromString(fallback)
	}
	return d
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Error loading .env file", err)
	}
	cfg := config.Load()

	db, err := gorm.Open(postgres.Open(cfg.Database.ConnStr), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalln(err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalln(err)
	}
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	err = db.AutoMigrate(
		&account.Account{},
		&ledger.Transaction{},
		&ledger.WalletLog{},
		&promotion.Promotion{},
		&commission.Report{},
		&rebate.Log{},
		&rebate.GameLog{},
		&scheduler.JobRun{},
	)
	if err != nil {
		log.Fatalln("failed to migrate database:", err)
	}
	if err := db.Exec(ledger.PendingIndexSQL).Error; err != nil {
		log.Fatalln("failed to create pending index:", err)
	}

	vipTable, err := vip.NewTable(defaultVIPTiers())
	if err != nil {
		log.Fatalln(err)
	}
	agentTable, err := agentlevel.NewTable(defaultAgentLevels())
	if err != nil {
		log.Fatalln(err)
	}

	accountRepo := account.NewRepositoryImpl(db)
	ledgerRepo := ledger.NewRepositoryImpl(db)
	promoRepo := promotion.NewRepositoryImpl(db)
	commissionRepo := commission.NewRepositoryImpl(db)
	rebateRepo := rebate.NewRepositoryImpl(db)
	gameLogRepo := rebate.NewGameLogRepositoryImpl(db)

	kioskClient, err := kiosk.NewHTTPClient(cfg.Kiosk.BaseURL, cfg.Kiosk.Secret, cfg.Kiosk.Timeout)
	if err != nil {
		log.Fatalln(err)
	}
	feedClient := gamefeed.NewHTTPClient(cfg.GameFeed.BaseURL, cfg.GameFeed.APIKey, cfg.GameFeed.Timeout)

	gateService := gate.NewService(accountRepo, ledgerRepo, promoRepo, feedClient)
	ledgerService := ledger.NewService(db, ledgerRepo, accountRepo, gateService, vipTable)

	tracker := vip.NewTracker(accountRepo, vipTable, vip.NewCheckpoint())

	payoutService := payout.NewService(payout.NewStoreImpl(db, accountRepo, ledgerRepo), kioskClient)

	agentStore := agentlevel.NewGormStore(db, accountRepo, ledgerRepo)
	agentService := agentlevel.NewService(agentStore, agentTable, agentStore, kioskClient)

	commissionService := commission.NewService(accountRepo, ledgerRepo, commissionRepo, feedClient, payoutService, commission.Config{
		Mode:           cfg.Settlement.CommissionMode,
		FlatRate:       mustDecimal(cfg.Settlement.CommissionRate, "0.05"),
		MaxUplineDepth: cfg.Settlement.MaxUplineDepth,
		LevelRates:     defaultLevelRates(),
	})
	rebateService := rebate.NewService(accountRepo, ledgerRepo, rebateRepo, gameLogRepo, feedClient, payoutService, tracker, vipTable, rebate.Config{
		Mode:     cfg.Settlement.RebateMode,
		FlatRate: mustDecimal(cfg.Settlement.RebateRate, "0.01"),
	})

	sched := scheduler.New(db)
	sched.Register("commission", 7*24*time.Hour, func(ctx context.Context, now time.Time) error {
		_, err := commissionService.Run(ctx, now)
		return err
	})
	sched.Register("rebate", 24*time.Hour, func(ctx context.Context, now time.Time) error {
		_, err := rebateService.Run(ctx, now)
		return err
	})
	if cfg.Settlement.SchedulerEnabled {
		go sched.Start(context.Background())
	}

	r := gin.Default()

	type submitRequest struct {
		AccountID string          `json:"account_id" binding:"required"`
		Amount    decimal.Decimal `json:"amount" binding:"required"`
	}

	r.POST("/transactions/deposit", func(c *gin.Context) {
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		t, err := ledgerService.SubmitDeposit(c.Request.Context(), req.AccountID, req.Amount)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, t)
	})

	r.POST("/transactions/withdrawal", func(c *gin.Context) {
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		t, err := ledgerService.SubmitWithdrawal(c.Request.Context(), req.AccountID, req.Amount)
		if err != nil {
			var blocked *gate.BlockedError
			if errors.As(err, &blocked) {
				c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "detail": blocked.Result})
				return
			}
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, t)
	})

	r.GET("/accounts/:account_id/eligibility", func(c *gin.Context) {
		result, err := gateService.CheckWithdrawalEligibility(c.Request.Context(), c.Param("account_id"))
		if err != nil {
			// The gate fails closed: a lookup failure blocks the withdrawal.
			c.JSON(statusFor(err), gin.H{"eligible": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	})

	r.GET("/accounts/:account_id/wallet-logs", func(c *gin.Context) {
		logs, err := ledgerRepo.WalletLogs(c.Request.Context(), c.Param("account_id"), 100)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"logs": logs})
	})

	r.POST("/bets", func(c *gin.Context) {
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		progress, err := tracker.ApplyTurnover(c.Request.Context(), req.AccountID, req.Amount)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, progress)
	})

	r.POST("/agents/:account_id/reevaluate", func(c *gin.Context) {
		result, err := agentService.Reevaluate(c.Request.Context(), c.Param("account_id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	})

	admin := r.Group("/admin")
	{
		admin.POST("/transactions/:transaction_id/approve", func(c *gin.Context) {
			adminID := c.DefaultQuery("admin_id", "admin")
			txID := c.Param("transaction_id")
			t, err := ledgerRepo.GetByID(c.Request.Context(), txID)
			if err != nil {
				c.JSON(statusFor(err), gin.H{"error": err.Error()})
				return
			}
			if t.Type == ledger.TypeWithdrawal {
				err = ledgerService.ApproveWithdrawal(c.Request.Context(), txID, adminID)
			} else {
				err = ledgerService.ApproveDeposit(c.Request.Context(), txID, adminID)
			}
			if err != nil {
				c.JSON(statusFor(err), gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "approved"})
		})

		admin.POST("/transactions/:transaction_id/reject", func(c *gin.Context) {
			adminID := c.DefaultQuery("admin_id", "admin")
			if err := ledgerService.Reject(c.Request.Context(), c.Param("transaction_id"), adminID); err != nil {
				c.JSON(statusFor(err), gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "rejected"})
		})

		admin.POST("/commission-reports/:report_id/claim", func(c *gin.Context) {
			adminID := c.DefaultQuery("admin_id", "admin")
			if err := commissionService.Claim(c.Request.Context(), c.Param("report_id"), adminID); err != nil {
				c.JSON(statusFor(err), gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "claimed"})
		})

		admin.POST("/rebate-logs/:log_id/claim", func(c *gin.Context) {
			adminID := c.DefaultQuery("admin_id", "admin")
			if err := rebateService.Claim(c.Request.Context(), c.Param("log_id"), adminID); err != nil {
				c.JSON(statusFor(err), gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "claimed"})
		})

		admin.POST("/run/:job", func(c *gin.Context) {
			if err := sched.Trigger(c.Request.Context(), c.Param("job"), time.Now()); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}

	fmt.Println("Server started on :" + cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatal(err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, account.ErrAccountNotFound),
		errors.Is(err, ledger.ErrTransactionNotFound),
		errors.Is(err, commission.ErrReportNotFound),
		errors.Is(err, rebate.ErrLogNotFound):
		return http.StatusNotFound
	case errors.Is(err, account.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, ledger.ErrPendingExists),
		errors.Is(err, ledger.ErrInvalidTransition),
		errors.Is(err, commission.ErrAlreadyClaimed),
		errors.Is(err, rebate.ErrAlreadyClaimed):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrWithdrawalLocked),
		errors.Is(err, ledger.ErrWithdrawalLimit):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

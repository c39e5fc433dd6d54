package main

import (
	"context"
	"flag"
	"futures-grid-bot/internal/api"
	"futures-grid-bot/internal/bot"
	"futures-grid-bot/internal/config"
	"futures-grid-bot/internal/exchange"
	"futures-grid-bot/internal/logger"
	"futures-grid-bot/internal/models"
	"futures-grid-bot/internal/persistence"
	"futures-grid-bot/internal/reporter"
	"futures-grid-bot/internal/status"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const reportInterval = 30 * time.Second

func main() {
	// --- 命令行参数定义 ---
	configPath := flag.String("config", "config.json", "path to the config file")
	mode := flag.String("mode", "live", "running mode: live or paper")
	paperBalance := flag.Float64("paper-balance", 1000, "starting wallet balance for paper mode")
	autostart := flag.Bool("autostart", false, "start the grid immediately instead of waiting for /api/start")
	flag.Parse()

	// 先用默认配置初始化日志，以便记录加载配置过程中的问题
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	// --- 加载 .env 文件 ---
	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	} else {
		logger.S().Info("成功从 .env 文件加载配置。")
	}

	// --- 加载 JSON 配置 ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}

	// --- 使用文件中的配置重新初始化日志 ---
	log := logger.InitLogger(cfg.LogConfig)
	defer logger.S().Sync()

	if cfg.IsTestnet {
		cfg.BaseURL = cfg.TestnetAPIURL
		logger.S().Info("正在使用币安测试网...")
	} else {
		cfg.BaseURL = cfg.LiveAPIURL
		logger.S().Info("正在使用币安生产网...")
	}

	gw := buildGateway(*mode, cfg, *paperBalance, log)

	// --- 状态持久化 ---
	var repo persistence.StatusRepository
	var initial *models.BotStatus
	repo, err = persistence.NewBadgerRepository(cfg.DBPath)
	if err != nil {
		logger.S().Warnf("无法打开状态数据库 %s, 本次运行不保存状态: %v", cfg.DBPath, err)
		repo = nil
	} else {
		defer repo.Close()
		initial, err = repo.LoadStatus()
		if err != nil {
			logger.S().Warnf("读取上次的状态失败: %v", err)
		}
		if initial != nil {
			logger.S().Infof("已恢复上次运行的状态快照 (最后更新 %s)", initial.LastUpdate.Format(time.DateTime))
			initial.Running = false
			if initial.State.Active() {
				initial.State = models.StateStopped
			}
		}
	}

	sink := status.NewSink(initial, repo, log)
	sink.Start()

	ctrl := bot.NewController(gw, *cfg, sink, log)
	srv := api.NewServer(cfg.HTTPAddr, ctrl, time.Second, log)
	go func() {
		if err := srv.Run(); err != nil {
			logger.S().Fatalf("控制面启动失败: %v", err)
		}
	}()

	if *autostart {
		if !ctrl.Start(models.ConfigOverrides{}) {
			logger.S().Warn("自动启动失败，请查看状态日志。")
		}
	}

	// --- 周期性打印状态并等待退出信号 ---
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

wait:
	for {
		select {
		case <-ticker.C:
			if ctrl.State() == models.StateRunning {
				reporter.PrintStatus(os.Stdout, ctrl.Status())
			}
		case <-sigChan:
			break wait
		}
	}

	logger.S().Info("接收到退出信号，正在停止机器人...")
	ctrl.Stop()
	ctrl.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.S().Warnf("关闭控制面失败: %v", err)
	}

	reporter.PrintStatus(os.Stdout, ctrl.Status())
	sink.Stop()
	logger.S().Info("机器人已安全退出。")
}

// buildGateway 根据运行模式创建交易所实现
func buildGateway(mode string, cfg *models.Config, paperBalance float64, log *zap.Logger) exchange.Gateway {
	fallback := models.Precision{Price: cfg.DefaultPricePrecision, Quantity: cfg.DefaultQuantityPrecision}

	switch mode {
	case "live":
		apiKey := os.Getenv("BINANCE_API_KEY")
		secretKey := os.Getenv("BINANCE_SECRET_KEY")
		if apiKey == "" || secretKey == "" {
			logger.S().Fatal("错误：BINANCE_API_KEY 和 BINANCE_SECRET_KEY 环境变量必须被设置。")
		}
		return exchange.NewLiveExchange(apiKey, secretKey, cfg.BaseURL, fallback, log)

	case "paper":
		// 行情和交易规则来自公共接口，不需要API密钥
		market := exchange.NewLiveExchange("", "", cfg.BaseURL, fallback, log)
		ctx, cancel := context.WithTimeout(context.Background(), cfg.CallTimeout())
		precision := models.Precision{
			Quantity:  market.GetInstrumentPrecision(ctx, cfg.Symbol),
			Price:     market.GetPricePrecision(ctx, cfg.Symbol),
			PriceTick: market.GetPriceTick(ctx, cfg.Symbol),
		}
		cancel()
		logger.S().Infof("--- 启动模拟盘模式, 初始资金 %.2f %s ---", paperBalance, cfg.QuoteAsset)
		return exchange.NewPaperExchange(cfg.Symbol, cfg.QuoteAsset, paperBalance, precision, market.GetPrice)

	default:
		logger.S().Fatalf("未知的运行模式: %s。请选择 'live' 或 'paper'。", mode)
		return nil
	}
}

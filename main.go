package main

import (
	"log"
	"os"
	"strings"

	"chatrelay/config"
	dbpkg "chatrelay/db"
	"chatrelay/pipeline"
	"chatrelay/router"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// =====================
// ENV esperadas
// =====================
//
// Server
// - CONFIG_PATH                (default: config.json)
// - WEBHOOK_VERIFY_TOKEN       (fallback global para verificação do webhook)
// - WEBHOOK_APP_SECRET         (App Secret da Meta para validar X-Hub-Signature-256)
// - WEBHOOK_DEFAULT_USER_ID    (dev: mantém /webhook sem :userId funcionando)
//
// Voiceflow
// - VOICEFLOW_API_KEY          (fallback quando o tenant não tem api_key própria)
//
// =====================

func main() {
	// .env é opcional: em produção as variáveis vêm do ambiente
	_ = godotenv.Load()

	cfg := config.Get(getenv("CONFIG_PATH", "config.json"))

	dbpkg.SetConfigurations(cfg)
	database, err := dbpkg.Connect()
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()

	reporter := pipeline.LogReporter{}
	engine := pipeline.NewVoiceflowClient(cfg.Pipeline.VoiceflowBaseURL, reporter)
	sender := pipeline.NewMetaSender(database, cfg.Pipeline.GraphBaseURL, reporter)
	processor := pipeline.NewProcessor(database, engine, sender, reporter, cfg.Pipeline.DailyMessageLimit)

	r := gin.New()
	r.Use(dbpkg.SetDBtoContext(database))
	r.Use(pipeline.SetToContext(processor))
	router.Initialize(r, cfg)

	log.Printf("chatrelay listening on :%s", cfg.ApiPort)
	log.Fatal(r.Run(":" + cfg.ApiPort))
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

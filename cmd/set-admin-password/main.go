package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/stemsi/cbt-backend/internal/config"
	"github.com/stemsi/cbt-backend/internal/database"
	"github.com/stemsi/cbt-backend/internal/logger"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	settingRepo := repository.NewSettingRepository(pool)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Set Exam Administrator Credentials ===")

	current, err := settingRepo.GetSchoolData(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read school settings")
	}
	if current.AdminUsername != "" {
		fmt.Printf("Current username: %s\n", current.AdminUsername)
	}

	fmt.Print("Enter Username: ")
	username, _ := reader.ReadString('\n')
	username = strings.TrimSpace(username)
	if username == "" {
		fmt.Println("Error: Username is required")
		return
	}

	fmt.Print("Enter Display Name (optional): ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading password")
		return
	}

	fmt.Print("Repeat Password: ")
	byteRepeat, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading password")
		return
	}

	password := string(bytePassword)
	if password != string(byteRepeat) {
		fmt.Println("Error: Passwords do not match")
		return
	}
	if len(password) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	updates := map[string]string{
		model.SettingAdminUsername:     username,
		model.SettingAdminPasswordHash: string(hashedPassword),
	}
	if name != "" {
		updates[model.SettingAdminName] = name
	}
	for key, value := range updates {
		if err := settingRepo.Upsert(ctx, key, value); err != nil {
			log.Fatal().Err(err).Str("key", key).Msg("Failed to save setting")
		}
	}

	fmt.Printf("\nSuccess! Administrator '%s' saved. Restart the server or refresh the catalog to apply.\n", username)
}

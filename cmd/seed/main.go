package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/cbt-backend/internal/config"
	"github.com/stemsi/cbt-backend/internal/database"
	"github.com/stemsi/cbt-backend/internal/logger"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

const (
	demoClass    = "XII MIPA 1"
	demoPassword = "123"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	settingRepo := repository.NewSettingRepository(pool)
	classRepo := repository.NewClassRepository(pool)
	studentRepo := repository.NewStudentRepository(pool)
	subjectRepo := repository.NewSubjectRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)

	fmt.Println("=== Seeding demo school ===")

	school := map[string]string{
		model.SettingSchoolName:    "SMA Negeri 1 Contoh",
		model.SettingSchoolAddress: "Jl. Pendidikan No. 1",
		model.SettingSchoolTerm:    "Semester Genap 2025/2026",
		model.SettingAdminName:     "Operator Ujian",
	}
	for key, value := range school {
		if err := settingRepo.Upsert(ctx, key, value); err != nil {
			log.Fatal().Err(err).Str("key", key).Msg("Failed to write setting")
		}
	}

	class := &model.Class{Name: demoClass, Level: "XII"}
	if err := classRepo.Upsert(ctx, class); err != nil {
		log.Fatal().Err(err).Msg("Failed to create class")
	}
	fmt.Printf("Class %q has ID %s\n", class.Name, class.ID)

	hash, err := bcrypt.GenerateFromPassword([]byte(demoPassword), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	names := []string{"Ahmad Dahlan", "Kartini Putri", "Budi Utomo", "Dewi Sartika", "Cut Nyak Dien"}
	created := 0
	for i, name := range names {
		student := &model.Student{
			NIS:          strconv.Itoa(12345 + i),
			Name:         name,
			Class:        demoClass,
			PasswordHash: string(hash),
		}
		if existing, err := studentRepo.GetByNIS(ctx, student.NIS); err == nil {
			fmt.Printf("Updating existing student %s (ID %s)\n", existing.NIS, existing.ID)
		}
		if err := studentRepo.Upsert(ctx, student); err != nil {
			fmt.Printf("Error creating student %s (NIS: %s): %v\n", student.Name, student.NIS, err)
			continue
		}
		created++
	}

	subject := &model.Subject{Name: "Matematika", Code: "MTK-XII", Class: demoClass}
	if err := subjectRepo.Upsert(ctx, subject); err != nil {
		log.Fatal().Err(err).Msg("Failed to create subject")
	}

	questions := []model.Question{
		{
			Type:    model.QuestionTypeSingle,
			Text:    "Hasil dari 12 × 12 adalah ...",
			Options: []string{"124", "144", "154", "164"},
			Correct: json.RawMessage(`1`),
		},
		{
			Type:    model.QuestionTypeMulti,
			Text:    "Manakah yang merupakan bilangan prima?",
			Options: []string{"2", "9", "11", "15"},
			Correct: json.RawMessage(`[0,2]`),
		},
		{
			Type:     model.QuestionTypeComplex,
			Text:     "Tentukan benar atau salah untuk setiap pernyataan.",
			Stimulus: "f(x) = 2x + 3",
			Options:  []string{"f(0) = 3", "f(1) = 4", "f(2) = 7"},
			Correct:  json.RawMessage(`[true,false,true]`),
		},
	}
	for i := range questions {
		q := &questions[i]
		q.ID = uuid.NewString()
		q.SubjectID = subject.ID
		q.Class = demoClass
		q.Tags = model.WithSubjectTag([]string{"aljabar"}, subject.ID)
		if err := questionRepo.Upsert(ctx, q); err != nil {
			log.Fatal().Err(err).Int("index", i).Msg("Failed to create question")
		}
	}

	fmt.Printf("\nSeed completed! %d/%d students (password %q), subject %s with %d questions.\n",
		created, len(names), demoPassword, subject.ID, len(questions))
}

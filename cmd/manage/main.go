package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-approval-api/internal/dto"
	"github.com/noah-isme/attendance-approval-api/internal/models"
	"github.com/noah-isme/attendance-approval-api/internal/repository"
	"github.com/noah-isme/attendance-approval-api/internal/service"
	"github.com/noah-isme/attendance-approval-api/pkg/cache"
	"github.com/noah-isme/attendance-approval-api/pkg/config"
	"github.com/noah-isme/attendance-approval-api/pkg/database"
	appErrors "github.com/noah-isme/attendance-approval-api/pkg/errors"
	"github.com/noah-isme/attendance-approval-api/pkg/logger"
	"github.com/noah-isme/attendance-approval-api/pkg/storage"
	"github.com/noah-isme/attendance-approval-api/pkg/validation"
)

const statsCachePattern = "requests:stats:*"

type app struct {
	cfg      *config.Config
	logr     *zap.Logger
	db       *sqlx.DB
	accounts *repository.AccountRepository
	auth     *service.AuthService
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx := context.Background()
	command, args := os.Args[1], os.Args[2:]

	if command == "flush-cache" {
		if err := flushCache(ctx, cfg, logr); err != nil {
			logr.Fatal("flush-cache failed", zap.Error(err))
		}
		return
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	accounts := repository.NewAccountRepository(db)
	a := &app{
		cfg:      cfg,
		logr:     logr,
		db:       db,
		accounts: accounts,
		auth: service.NewAuthService(accounts, repository.NewTokenRepository(db), validation.New(), logr, service.AuthConfig{
			AccessTokenSecret: cfg.JWT.Secret,
			Issuer:            cfg.JWT.Issuer,
		}),
	}

	switch command {
	case "create-staff":
		err = a.createStaff(ctx, args)
	case "set-password":
		err = a.setPassword(ctx, args)
	case "list":
		err = a.list(ctx, args)
	case "seed":
		err = a.seed(ctx)
	default:
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		logr.Fatal(command+" failed", zap.Error(err))
	}
}

func printUsage() {
	fmt.Println("Usage: manage <command> [flags]")
	fmt.Println("Commands:")
	fmt.Println("  create-staff -name -role coordinator|hod -department -email -password")
	fmt.Println("  set-password -role -email -password")
	fmt.Println("  list [-role student|coordinator|hod]")
	fmt.Println("  seed")
	fmt.Println("  flush-cache")
}

func (a *app) createStaff(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-staff", flag.ExitOnError)
	name := fs.String("name", "", "display name")
	role := fs.String("role", string(models.RoleCoordinator), "coordinator or hod")
	department := fs.String("department", "", "department")
	email := fs.String("email", "", "login email")
	password := fs.String("password", "", "initial password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	parsed, ok := models.ParseRole(*role)
	if !ok || !parsed.IsStaff() {
		return fmt.Errorf("role must be coordinator or hod, got %q", *role)
	}
	info, err := a.auth.CreateStaff(ctx, service.StaffInput{
		Name:       *name,
		Role:       parsed,
		Department: *department,
		Email:      *email,
		Password:   *password,
	})
	if err != nil {
		return describe(err)
	}
	fmt.Printf("created %s %s (%s)\n", info.Role, info.Email, info.ID)
	return nil
}

func (a *app) setPassword(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("set-password", flag.ExitOnError)
	role := fs.String("role", "", "student, coordinator or hod")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "new password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	parsed, ok := models.ParseRole(*role)
	if !ok {
		return fmt.Errorf("unknown role %q", *role)
	}
	if err := a.auth.ResetPassword(ctx, parsed, *email, *password); err != nil {
		return describe(err)
	}
	fmt.Printf("password updated for %s\n", *email)
	return nil
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	role := fs.String("role", "", "limit to one role")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var roles []models.Role
	if *role == "" {
		roles = []models.Role{models.RoleStudent, models.RoleCoordinator, models.RoleHOD}
	} else {
		parsed, ok := models.ParseRole(*role)
		if !ok {
			return fmt.Errorf("unknown role %q", *role)
		}
		roles = []models.Role{parsed}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROLE\tID\tNAME\tDEPARTMENT\tEMAIL")
	for _, r := range roles {
		if r == models.RoleStudent {
			students, err := a.accounts.ListStudents(ctx)
			if err != nil {
				return err
			}
			for _, s := range students {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", models.RoleStudent, s.ID, s.Name, s.Department, s.Email)
			}
			continue
		}
		staff, err := a.accounts.ListStaff(ctx, r)
		if err != nil {
			return err
		}
		for _, s := range staff {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.Role, s.ID, s.Name, s.Department, s.Email)
		}
	}
	return w.Flush()
}

type seedStep struct {
	role     models.Role
	decision models.Decision
}

type seedPlan struct {
	owner   *models.JWTClaims
	subject string
	steps   []seedStep
}

// seed creates demo accounts and a handful of requests spread over every status.
func (a *app) seed(ctx context.Context) error {
	const password = "password123"

	students := []models.RegisterStudentRequest{
		{Name: "Siti Rahma", Department: "Informatics", Contact: "081234567890", Email: "siti@example.edu", Password: password},
		{Name: "Budi Santoso", Department: "Informatics", Contact: "081298765432", Email: "budi@example.edu", Password: password},
	}
	staff := []service.StaffInput{
		{Name: "Dewi Lestari", Role: models.RoleCoordinator, Department: "Informatics", Email: "coordinator@example.edu", Password: password},
		{Name: "Dr. Hartono", Role: models.RoleHOD, Department: "Informatics", Email: "hod@example.edu", Password: password},
	}

	studentClaims := make([]*models.JWTClaims, 0, len(students))
	for _, req := range students {
		claims, err := a.ensureStudent(ctx, req)
		if err != nil {
			return err
		}
		studentClaims = append(studentClaims, claims)
	}
	staffClaims := make(map[models.Role]*models.JWTClaims, len(staff))
	for _, input := range staff {
		claims, err := a.ensureStaff(ctx, input)
		if err != nil {
			return err
		}
		staffClaims[input.Role] = claims
	}

	blobs, err := storage.NewLocalStorage(a.cfg.Attachments.StorageDir)
	if err != nil {
		return err
	}
	requests := service.NewRequestService(
		repository.NewRequestRepository(a.db),
		blobs,
		storage.NewSignedURLSigner(a.cfg.Attachments.SignedURLSecret, a.cfg.Attachments.SignedURLTTL),
		a.logr,
	)

	day := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, 1)
	window := func(offset int) (string, string) {
		start := day.AddDate(0, 0, offset).Add(8 * time.Hour)
		return start.Format(time.RFC3339), start.Add(4 * time.Hour).Format(time.RFC3339)
	}

	plans := []seedPlan{
		{owner: studentClaims[0], subject: "Medical appointment"},
		{owner: studentClaims[0], subject: "Family wedding", steps: []seedStep{
			{models.RoleCoordinator, models.DecisionApproved},
		}},
		{owner: studentClaims[1], subject: "Regional debate competition", steps: []seedStep{
			{models.RoleCoordinator, models.DecisionApproved},
			{models.RoleHOD, models.DecisionApproved},
		}},
		{owner: studentClaims[1], subject: "Sick leave", steps: []seedStep{
			{models.RoleCoordinator, models.DecisionRejected},
		}},
	}

	for i, p := range plans {
		start, end := window(i)
		req, err := requests.Submit(ctx, p.owner, dto.SubmitRequest{
			Subject:     p.subject,
			Description: "Seeded sample request",
			StartTime:   start,
			EndTime:     end,
			Contact:     "081200000000",
		}, nil)
		if err != nil {
			return describe(err)
		}
		for _, d := range p.steps {
			if _, err := requests.Decide(ctx, staffClaims[d.role], req.ID, dto.DecisionRequest{
				Decision: d.decision,
				Remarks:  "seeded",
			}); err != nil {
				return describe(err)
			}
		}
		fmt.Printf("request #%d %q seeded\n", req.ID, p.subject)
	}

	fmt.Printf("seed complete; every account uses password %q\n", password)
	return nil
}

func (a *app) ensureStudent(ctx context.Context, req models.RegisterStudentRequest) (*models.JWTClaims, error) {
	if _, err := a.auth.RegisterStudent(ctx, req); err != nil && !errors.Is(err, appErrors.ErrConflict) {
		return nil, describe(err)
	}
	return a.claimsFor(ctx, models.RoleStudent, req.Email)
}

func (a *app) ensureStaff(ctx context.Context, input service.StaffInput) (*models.JWTClaims, error) {
	if _, err := a.auth.CreateStaff(ctx, input); err != nil && !errors.Is(err, appErrors.ErrConflict) {
		return nil, describe(err)
	}
	return a.claimsFor(ctx, input.Role, input.Email)
}

func (a *app) claimsFor(ctx context.Context, role models.Role, email string) (*models.JWTClaims, error) {
	account, err := a.accounts.FindByEmail(ctx, role, email)
	if err != nil {
		return nil, err
	}
	return &models.JWTClaims{
		AccountID:  account.ID,
		Role:       account.Role,
		Email:      account.Email,
		Name:       account.Name,
		Department: account.Department,
	}, nil
}

func flushCache(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	repo := repository.NewCacheRepository(client, logr)
	defer repo.Close() //nolint:errcheck

	svc := service.NewCacheService(repo, nil, cfg.Cache.StatsTTL, logr, true, service.WithCacheNamespace(cfg.Cache.Namespace))
	if err := svc.Invalidate(ctx, statsCachePattern); err != nil {
		return err
	}
	fmt.Println("statistics cache flushed")
	return nil
}

func describe(err error) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return fmt.Errorf("%s: %s", appErr.Code, appErr.Message)
	}
	return err
}

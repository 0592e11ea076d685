package main

import (
	"errors"
	"fmt"
	"time"

	"jobboard-notify-be/internal/entity"
	"jobboard-notify-be/internal/model"
	"jobboard-notify-be/internal/repository/implementation"
	"jobboard-notify-be/pkg/database"
	"jobboard-notify-be/pkg/events"
	pktNats "jobboard-notify-be/pkg/nats"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var applicantNames = []string{"Alice", "Bob", "Carol", "Dan", "Erin", "Frank", "Grace", "Heidi"}

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "Migrate the schema and insert the default notification types",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		if err := database.AutoMigrate(db); err != nil {
			return err
		}
		for _, t := range model.DefaultNotificationTypes() {
			color.Green("✓ %s (%s)", t.Code, t.DisplayName)
		}
		color.Cyan("Notification types seeded.")
		return nil
	},
}

var applicationsOpts struct {
	company string
	jobID   string
	title   string
	count   int
	viaNats bool
}

var applicationsCmd = &cobra.Command{
	Use:   "applications",
	Short: "Create NEW_APPLICATION notifications for one job",
	Long: `Creates --count applications for a job so the company sees them grouped.
With --nats the events go through the bus and the running service persists
them; otherwise they are written straight to the database.`,
	RunE: runApplications,
}

func init() {
	f := applicationsCmd.Flags()
	f.StringVar(&applicationsOpts.company, "company", "company-1", "recipient company id")
	f.StringVar(&applicationsOpts.jobID, "job", "job-1", "job id")
	f.StringVar(&applicationsOpts.title, "title", "Backend Engineer", "job title")
	f.IntVar(&applicationsOpts.count, "count", 3, "number of applications")
	f.BoolVar(&applicationsOpts.viaNats, "nats", false, "publish events to NATS instead of writing to the database")
}

func runApplications(cmd *cobra.Command, args []string) error {
	if applicationsOpts.count < 1 {
		return errors.New("--count must be at least 1")
	}
	ctx := cmd.Context()

	color.Cyan("Seeding %d applications for %s on %s", applicationsOpts.count, applicationsOpts.title, applicationsOpts.company)

	if applicationsOpts.viaNats {
		pub, err := pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			return err
		}
		defer pub.Close()

		for i := 0; i < applicationsOpts.count; i++ {
			evt := events.BaseEvent{
				Type:       entity.NotificationTypeNewApplication,
				Data:       applicationPayload(i),
				OccurredAt: time.Now(),
			}
			if err := pub.Publish(ctx, evt); err != nil {
				return err
			}
			color.Green("→ published application from %s", applicantName(i))
		}
		return nil
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	repo := implementation.NewNotificationRepository(db)
	for i := 0; i < applicationsOpts.count; i++ {
		n := &model.Notification{
			RecipientID: applicationsOpts.company,
			TypeCode:    entity.NotificationTypeNewApplication,
			JobID:       applicationsOpts.jobID,
			JobTitle:    applicationsOpts.title,
			SenderName:  applicantName(i),
			Message:     fmt.Sprintf("**%s** applied for **%s**.", applicantName(i), applicationsOpts.title),
			Link:        fmt.Sprintf("/jobs/%s/applications", applicationsOpts.jobID),
		}
		if err := repo.CreateNotification(ctx, n); err != nil {
			return err
		}
		color.Green("✓ %s (%s)", n.SenderName, n.ID)
	}
	color.Yellow("Rows were written directly; open feeds refresh on their next change signal.")
	return nil
}

func applicationPayload(i int) map[string]interface{} {
	return map[string]interface{}{
		"recipient_id": applicationsOpts.company,
		"job_id":       applicationsOpts.jobID,
		"job_title":    applicationsOpts.title,
		"sender_name":  applicantName(i),
	}
}

func applicantName(i int) string {
	name := applicantNames[i%len(applicantNames)]
	if round := i / len(applicantNames); round > 0 {
		name = fmt.Sprintf("%s %d", name, round+1)
	}
	return name
}

func openDB() (*gorm.DB, error) {
	if cfg.Database.Connection == "" {
		return nil, errors.New("DB_CONNECTION_STRING is not set")
	}
	return database.NewGormDBFromDSN(cfg.Database.Connection)
}

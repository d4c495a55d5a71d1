// Package scheduler drives the recurring billing jobs: materializing overdue
// invoices and sending payment reminders.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashridge/hostbill/internal/clock"
	"github.com/hashridge/hostbill/internal/config"
	customerdomain "github.com/hashridge/hostbill/internal/customer/domain"
	invoicedomain "github.com/hashridge/hostbill/internal/invoice/domain"
	notificationdomain "github.com/hashridge/hostbill/internal/notification/domain"
	obsmetrics "github.com/hashridge/hostbill/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler misconfigured")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Billing     *config.BillingConfigHolder
	InvoiceSvc  invoicedomain.Service
	CustomerSvc customerdomain.Service
	NotifySvc   notificationdomain.Service
	Locker      *Locker                    `optional:"true"`
	Metrics     *obsmetrics.BillingMetrics `optional:"true"`
	Config      Config                     `optional:"true"`
}

type Scheduler struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         Config
	clock       clock.Clock
	billing     *config.BillingConfigHolder
	invoiceSvc  invoicedomain.Service
	customerSvc customerdomain.Service
	notifySvc   notificationdomain.Service
	locker      *Locker
	metrics     *obsmetrics.BillingMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Billing == nil ||
		p.InvoiceSvc == nil || p.CustomerSvc == nil || p.NotifySvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:          p.DB,
		log:         p.Log.Named("scheduler"),
		cfg:         p.Config.withDefaults(),
		clock:       p.Clock,
		billing:     p.Billing,
		invoiceSvc:  p.InvoiceSvc,
		customerSvc: p.CustomerSvc,
		notifySvc:   p.NotifySvc,
		locker:      p.Locker,
		metrics:     p.Metrics,
	}, nil
}

// RunOnce executes every job one time. With a locker configured only one
// replica per interval gets through; the rest skip silently.
func (s *Scheduler) RunOnce(parent context.Context) error {
	if s.locker != nil {
		token, ok, err := s.locker.TryLock(parent, s.cfg.LockKey, s.interval())
		if err != nil {
			s.log.Warn("scheduler lock unavailable, running locally", zap.Error(err))
		} else if !ok {
			return nil
		} else {
			defer func() {
				if err := s.locker.Release(parent, s.cfg.LockKey, token); err != nil {
					s.log.Warn("scheduler lock release failed", zap.Error(err))
				}
			}()
		}
	}

	var err error
	err = errors.Join(err, s.runJob(parent, "overdue_sweep", s.OverdueSweepJob))
	err = errors.Join(err, s.runJob(parent, "payment_reminders", s.PaymentRemindersJob))
	return err
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	log := s.log.With(zap.String("job", name), zap.Duration("took", time.Since(start)))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			log.Warn("job timed out", zap.Error(err))
			return nil
		}
		log.Warn("job failed", zap.Error(err))
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		// Interval re-read each loop so a billing-config reload takes
		// effect without a restart.
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interval()):
		}
	}
}

func (s *Scheduler) interval() time.Duration {
	minutes := s.billing.Get().OverdueSweepMinutes
	if minutes <= 0 {
		minutes = config.DefaultBillingConfig().OverdueSweepMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// OverdueSweepJob materializes the derived OVERDUE state so that plain SQL
// consumers agree with the API.
func (s *Scheduler) OverdueSweepJob(ctx context.Context) error {
	rows, err := s.invoiceSvc.SweepOverdue(ctx)
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.AddOverdueSweepRows(rows)
	}
	if rows > 0 {
		s.log.Info("overdue invoices swept", zap.Int64("rows", rows))
	}
	return nil
}

// PaymentRemindersJob emails one reminder per elapsed billing-config offset.
// Send failures are retried on the next run because only SENT rows count.
func (s *Scheduler) PaymentRemindersJob(ctx context.Context) error {
	offsets := s.billing.Get().ReminderOffsetsDays
	if len(offsets) == 0 {
		return nil
	}
	now := s.clock.Now()

	var invoices []invoicedomain.Invoice
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM invoices
		 WHERE status IN (?, ?) AND due_at < ?
		 ORDER BY due_at`,
		invoicedomain.InvoiceStatusIssued,
		invoicedomain.InvoiceStatusOverdue,
		now,
	).Scan(&invoices).Error
	if err != nil {
		return err
	}

	var jobErr error
	for _, invoice := range invoices {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		daysPast := int(now.Sub(invoice.DueAt).Hours() / 24)
		due := 0
		for _, offset := range offsets {
			if offset <= daysPast {
				due++
			}
		}
		if due == 0 {
			continue
		}

		var sent int64
		err := s.db.WithContext(ctx).Raw(
			`SELECT COUNT(*) FROM invoice_notifications
			 WHERE invoice_id = ? AND type = ? AND status = ?`,
			invoice.ID,
			notificationdomain.NotificationTypePaymentReminder,
			notificationdomain.NotificationStatusSent,
		).Scan(&sent).Error
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			continue
		}
		if int(sent) >= due {
			continue
		}

		customer, err := s.customerSvc.GetByID(ctx, invoice.CustomerID.String())
		if err != nil {
			jobErr = errors.Join(jobErr, fmt.Errorf("invoice %s: %w", invoice.ID, err))
			continue
		}
		if _, err := s.notifySvc.SendPaymentReminder(ctx, invoice, customer); err != nil {
			jobErr = errors.Join(jobErr, fmt.Errorf("invoice %s: %w", invoice.ID, err))
		}
	}
	return jobErr
}

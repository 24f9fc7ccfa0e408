// Command stress-go drives a mixed gorm workload against an Oracle schema
// through the oluacle driver and reports throughput and error counts.
//
//	OLUACLE_DSN='scott/tiger@//localhost:1521/FREEPDB1' NUM_WORKERS=8 go run ./stress-go
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/oluacle/oluacle/gormoluacle"
)

// Context key for worker ID
type contextKey string

const workerIDKey contextKey = "worker_id"

// WorkerLogger sends gorm's statement trace to logrus, tagged with the worker.
type WorkerLogger struct {
	log *logrus.Logger
}

func (l *WorkerLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return l
}

func (l *WorkerLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.entry(ctx).Infof(msg, data...)
}

func (l *WorkerLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.entry(ctx).Warnf(msg, data...)
}

func (l *WorkerLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.entry(ctx).Errorf(msg, data...)
}

func (l *WorkerLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	sql, rows := fc()
	e := l.entry(ctx).WithFields(logrus.Fields{
		"elapsed_ms": float64(time.Since(begin).Nanoseconds()) / 1e6,
		"rows":       rows,
	})
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		e.WithError(err).Warn(sql)
		return
	}
	e.Debug(sql)
}

func (l *WorkerLogger) entry(ctx context.Context) *logrus.Entry {
	workerID, _ := ctx.Value(workerIDKey).(string)
	if workerID == "" {
		workerID = "main"
	}
	return l.log.WithField("worker", workerID)
}

// Record is the stress table.
type Record struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Name      string `gorm:"size:64;index"`
	Value     int
	Data      string `gorm:"size:200"`
}

// Stats tracking
type Stats struct {
	Inserts atomic.Int64
	Updates atomic.Int64
	Deletes atomic.Int64
	Selects atomic.Int64
	Misses  atomic.Int64
	Errors  atomic.Int64
}

func main() {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(lvl)
	}

	dsn := os.Getenv("OLUACLE_DSN")
	if dsn == "" {
		log.Fatal("OLUACLE_DSN is not set (user/password@database)")
	}
	numWorkers := 10
	if n, err := strconv.Atoi(os.Getenv("NUM_WORKERS")); err == nil && n > 0 {
		numWorkers = n
	}
	duration := time.Duration(0)
	if d, err := time.ParseDuration(os.Getenv("DURATION")); err == nil {
		duration = d
	}

	db, err := gorm.Open(gormoluacle.Open(dsn), &gorm.Config{
		Logger: &WorkerLogger{log: log},
	})
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.WithError(err).Fatal("failed to get underlying sql.DB")
	}
	sqlDB.SetMaxOpenConns(numWorkers)
	sqlDB.SetMaxIdleConns(numWorkers)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Record{}); err != nil {
		log.WithError(err).Fatal("failed to migrate")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	var stats Stats
	go statsReporter(ctx, log, &stats)

	log.WithField("workers", numWorkers).Info("starting stress workers")
	var wg sync.WaitGroup
	for i := range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stressWorker(ctx, db, &stats, i)
		}()
	}
	wg.Wait()
	report(log, &stats)
}

func statsReporter(ctx context.Context, log *logrus.Logger, stats *Stats) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report(log, stats)
		}
	}
}

func report(log *logrus.Logger, stats *Stats) {
	log.WithFields(logrus.Fields{
		"inserts": stats.Inserts.Load(),
		"updates": stats.Updates.Load(),
		"deletes": stats.Deletes.Load(),
		"selects": stats.Selects.Load(),
		"misses":  stats.Misses.Load(),
		"errors":  stats.Errors.Load(),
	}).Info("stats")
}

// stressWorker runs weighted random operations until ctx is done.
func stressWorker(ctx context.Context, db *gorm.DB, stats *Stats, id int) {
	ops := []func(*gorm.DB, *Stats) error{doInsert, doUpdate, doDelete, doSelect}
	weights := []int{40, 25, 10, 25}
	var weighted []func(*gorm.DB, *Stats) error
	for i, op := range ops {
		for range weights[i] {
			weighted = append(weighted, op)
		}
	}

	tx := db.WithContext(context.WithValue(ctx, workerIDKey, fmt.Sprintf("worker-%d", id)))
	for ctx.Err() == nil {
		op := weighted[rand.Intn(len(weighted))]
		if err := op(tx, stats); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				stats.Misses.Add(1)
			} else if ctx.Err() == nil {
				stats.Errors.Add(1)
			}
		}
		time.Sleep(time.Duration(1+rand.Intn(10)) * time.Millisecond)
	}
}

func doInsert(db *gorm.DB, stats *Stats) error {
	record := Record{
		Name:  fmt.Sprintf("record_%d", rand.Int63()),
		Value: rand.Intn(10000),
		Data:  randomString(100),
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&record).Error
	})
	if err == nil {
		stats.Inserts.Add(1)
	}
	return err
}

func doUpdate(db *gorm.DB, stats *Stats) error {
	err := db.Transaction(func(tx *gorm.DB) error {
		var record Record
		// Pick a random ID - may not exist, that's fine
		if err := tx.First(&record, rand.Intn(100000)+1).Error; err != nil {
			return err
		}
		record.Value = rand.Intn(10000)
		record.Data = randomString(100)
		return tx.Save(&record).Error
	})
	if err == nil {
		stats.Updates.Add(1)
	}
	return err
}

func doDelete(db *gorm.DB, stats *Stats) error {
	var rowsAffected int64
	err := db.Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&Record{}, rand.Intn(100000)+1)
		rowsAffected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	stats.Deletes.Add(1)
	return nil
}

func doSelect(db *gorm.DB, stats *Stats) error {
	ids := make([]int, 10)
	for i := range ids {
		ids[i] = rand.Intn(100000) + 1
	}
	var records []Record
	if err := db.Find(&records, ids).Error; err != nil {
		return err
	}
	stats.Selects.Add(1)
	return nil
}

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}

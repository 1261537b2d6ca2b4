package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"
)

const (
	initTimeout   = 2 * time.Minute
	retryInterval = 2 * time.Second
)

// resources lists the tables and queues the storyboard API expects.
type resources struct {
	tables []string
	queues []string
}

func resourcesFromEnv(getenv func(string) string) (resources, error) {
	r := resources{
		tables: []string{getenv("PROJECTS_TABLE"), getenv("CARDS_TABLE")},
		queues: []string{getenv("CLEANUP_QUEUE")},
	}
	for _, name := range append(append([]string{}, r.tables...), r.queues...) {
		if name == "" {
			return resources{}, errors.New("missing PROJECTS_TABLE, CARDS_TABLE or CLEANUP_QUEUE")
		}
	}
	return r, nil
}

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	if connStr == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING")
	}
	res, err := resourcesFromEnv(os.Getenv)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	// The storage emulator may still be starting.
	for {
		err = ensure(ctx, connStr, res)
		if err == nil {
			break
		}
		log.WithError(err).Warn("storage not ready, retrying")
		select {
		case <-ctx.Done():
			log.Fatalf("storage init: %v", err)
		case <-time.After(retryInterval):
		}
	}
	log.WithFields(log.Fields{"tables": res.tables, "queues": res.queues}).Info("storage init complete")
}

func ensure(ctx context.Context, connStr string, res resources) error {
	if err := createTables(ctx, connStr, res.tables); err != nil {
		return err
	}
	return createQueues(ctx, connStr, res.queues)
}

func createTables(ctx context.Context, connStr string, names []string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := svc.NewClient(name).CreateTable(ctx, nil); err != nil && !alreadyExists(err, string(aztables.TableAlreadyExists)) {
			return err
		}
		log.WithField("table", name).Debug("table ready")
	}
	return nil
}

func createQueues(ctx context.Context, connStr string, names []string) error {
	for _, name := range names {
		q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
		if err != nil {
			return err
		}
		if _, err := q.Create(ctx, nil); err != nil && !alreadyExists(err, "QueueAlreadyExists") {
			return err
		}
		log.WithField("queue", name).Debug("queue ready")
	}
	return nil
}

func alreadyExists(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ffsqueeze/task"

	"github.com/sirupsen/logrus"
)

// cliListener prints batch progress through the logger.
type cliListener struct {
	log *logrus.Entry
}

func (l cliListener) OnProgress(message string, percent int) {
	l.log.WithField("percent", percent).Info(message)
}

func (l cliListener) OnFinished(success bool, lastOutputPath string) {
	if success {
		l.log.Infof("Finished. Last output: %s", lastOutputPath)
		return
	}
	l.log.Warnf("Stopped without success. Last output: %q", lastOutputPath)
}

// runBatch encodes files as one batch in the foreground and returns the
// process exit code. The first interrupt stops the batch after the current
// file; the second one kills the running encoder.
func runBatch(log *logrus.Entry, taskManager *task.Manager, files []string) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	taskManager.Start(ctx)

	b, err := taskManager.Submit(task.BatchRequest{Inputs: files}, cliListener{log: log})
	if err != nil {
		log.Errorf("Cannot start batch: %v", err)
		return 1
	}

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	interrupts := 0
	for {
		select {
		case <-b.Done():
			info := b.Info()
			if info.Success {
				return 0
			}
			if info.Error != "" {
				log.Errorf("Batch %s %s: %s", b.ID, info.Status, info.Error)
			}
			return 1
		case <-sigs:
			interrupts++
			if interrupts == 1 {
				log.Warn("Stopping after the current file, press Ctrl+C again to abort it")
				if err := taskManager.Cancel(b.ID); err != nil {
					log.Debugf("Cancel: %v", err)
				}
				continue
			}
			log.Warn("Aborting the running encode")
			b.RequestCancel()
			cancel()
		}
	}
}

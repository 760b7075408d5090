// Licensed to NASA JPL under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. NASA JPL licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/imcdata/imcprep/core/awsutil"
	"github.com/imcdata/imcprep/core/downloader"
	"github.com/imcdata/imcprep/core/fileaccess"
	"github.com/imcdata/imcprep/core/logger"
	"github.com/imcdata/imcprep/data-prep/config"
	"github.com/imcdata/imcprep/data-prep/pipeline"
)

// NOTE: set during compilation with -ldflags "-X main.AppVersion=..."
var AppVersion = "dev"

func main() {
	fmt.Println("==============================")
	fmt.Println("=  IMC example data prep     =")
	fmt.Println("==============================")
	fmt.Printf("Version: %v\n", AppVersion)

	os.Exit(run())
}

func run() int {
	cfg, err := config.Init()
	if err != nil {
		fmt.Printf("CONFIG ERROR: %v\n", err)
		printFail()
		return 1
	}

	level := logger.GetLogLevel(cfg.LogLevel)
	var log logger.ILogger
	if len(cfg.LogFile) > 0 {
		fileLog := logger.InitFileLogger(cfg.LogFile, level, 100, 30)
		defer fileLog.Close()
		log = fileLog
	} else {
		stdLog := &logger.StdOutLogger{}
		stdLog.SetLogLevel(level)
		log = stdLog
	}

	if len(cfg.SentryEndpoint) > 0 {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryEndpoint,
			Environment: cfg.EnvironmentName,
			Release:     AppVersion,
		}); err != nil {
			log.Errorf("Sentry initialization failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	deps := pipeline.Deps{
		Files:      &fileaccess.FSAccess{},
		Downloader: downloader.NewDownloader(nil, log),
	}

	if len(cfg.OutputBucket) > 0 {
		sess, err := awsutil.GetSession()
		if len(cfg.AWSRegion) > 0 {
			sess, err = awsutil.GetSessionWithRegion(cfg.AWSRegion)
		}
		if err != nil {
			log.Errorf("Failed to create AWS session: %v", err)
			printFail()
			return 1
		}
		s3svc, err := awsutil.GetS3(sess)
		if err != nil {
			log.Errorf("Failed to create S3 client: %v", err)
			printFail()
			return 1
		}
		deps.Files = fileaccess.MakeS3Access(s3svc)
		deps.Bucket = cfg.OutputBucket
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Infof("----- Preparing dataset: %v -----", cfg.DatasetName)
	summary, err := pipeline.Run(ctx, cfg, deps, log)
	if err != nil {
		log.Errorf("PREP ERROR: %v", err)
		sentry.CaptureException(err)
		printFail()
		return 1
	}

	log.Infof("Prepared %v cells x %v channels, %v images and masks, %v files", summary.Cells, summary.Channels, summary.Images, len(summary.Files))
	log.Infof("\n--------  SUCCESS  --------\n\n\n")
	return 0
}

func printFail() {
	fmt.Printf("\n****************************\n")
	fmt.Printf("**  FAIL    FAIL    FAIL  **\n")
	fmt.Printf("****************************\n\n\n")
}

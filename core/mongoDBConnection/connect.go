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

// Lowest-level code to connect to Mongo DB, where prepared datasets are catalogued
package mongoDBConnection

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/imcdata/imcprep/core/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const connectTimeout = 10 * time.Second

// Connect - connects and pings. caFile is a PEM bundle for TLS connections, leave empty for a
// plain connection (eg mongodb://localhost in docker)
func Connect(ctx context.Context, mongoURI string, caFile string, iLog logger.ILogger) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(mongoURI).
		SetMonitor(makeMongoCommandMonitor(iLog)).
		SetConnectTimeout(connectTimeout)

	if len(caFile) > 0 {
		tlsConfig, err := getCustomTLSConfig(caFile)
		if err != nil {
			return nil, fmt.Errorf("Failed getting TLS configuration: %v", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	iLog.Infof("Connecting to mongo db...")
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("Failed to create new mongo DB connection: %v", err)
	}

	// Try to ping the DB to confirm connection
	var result bson.M
	err = client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Decode(&result)
	if err != nil {
		client.Disconnect(ctx)
		return nil, err
	}

	iLog.Infof("Successfully connected to mongo db!")
	return client, nil
}

// GetDatabaseName - databases are suffixed with the environment so test runs don't mix with real ones
func GetDatabaseName(dbName string, envName string) string {
	if len(envName) <= 0 {
		return dbName
	}
	return dbName + "-" + envName
}

func getCustomTLSConfig(caFile string) (*tls.Config, error) {
	tlsConfig := new(tls.Config)
	certs, err := os.ReadFile(caFile)

	if err != nil {
		return tlsConfig, err
	}

	tlsConfig.RootCAs = x509.NewCertPool()
	ok := tlsConfig.RootCAs.AppendCertsFromPEM(certs)

	if !ok {
		return tlsConfig, errors.New("Failed parsing pem file")
	}

	return tlsConfig, nil
}

func makeMongoCommandMonitor(log logger.ILogger) *event.CommandMonitor {
	return &event.CommandMonitor{
		Started: func(_ context.Context, evt *event.CommandStartedEvent) {
			log.Debugf("Mongo request: %v", evt.CommandName)
		},
		Succeeded: func(_ context.Context, evt *event.CommandSucceededEvent) {
			log.Debugf("Mongo success: %v", evt.CommandName)
		},
		Failed: func(_ context.Context, evt *event.CommandFailedEvent) {
			log.Errorf("Mongo FAIL: %v %v", evt.CommandName, evt.Failure)
		},
	}
}

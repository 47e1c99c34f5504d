/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package log constructs the structured logger used across meister. It
// wraps zap behind the go-logr interface so every component here depends
// on logr.Logger rather than a concrete logging library.
package log

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewProduction returns a JSON-encoded, info-level logger suitable for
// cluster deployment.
func NewProduction() logr.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zl, err := cfg.Build()
	if err != nil {
		// zap's production config is static and always builds; a failure
		// here means the process environment is unusable for logging at all.
		panic(err)
	}
	return zapr.NewLogger(zl)
}

// NewDevelopment returns a console-encoded, debug-level logger suitable
// for cluster-absent / replay runs.
func NewDevelopment() logr.Logger {
	zl, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return zapr.NewLogger(zl)
}

// WithTick returns a logger with the tick correlation id attached to
// every subsequent field.
func WithTick(l logr.Logger, tickID string) logr.Logger {
	return l.WithValues("tick", tickID)
}

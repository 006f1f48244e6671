/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logger_test

import (
	"context"
	"fmt"

	"github.com/carverauto/maestream/pkg/logger"
)

func ExampleInit() {
	config := &logger.Config{
		Level:      "debug",
		Debug:      true,
		Output:     "stdout",
		TimeFormat: "",
	}

	err := logger.Init(context.Background(), config)
	if err != nil {
		panic(err)
	}

	logger.Info().Str("component", "bridge").Msg("Logger initialized successfully")
}

func ExampleWithComponent() {
	ingestLogger := logger.WithComponent("ingest")

	ingestLogger.Info().
		Str("endpoint", "mae-east").
		Int("alarms", 150).
		Msg("Synchronization completed")
}

func ExampleWithFields() {
	fields := map[string]interface{}{
		"endpoint":      "mae-east",
		"serial_number": "NE-1001",
		"alarm_id":      "42",
	}

	enrichedLogger := logger.WithFields(fields)
	enrichedLogger.Info().Msg("Alarm recorded")
}

func ExampleSetDebug() {
	logger.SetDebug(true)
	logger.Debug().Msg("This debug message will be visible")

	logger.SetDebug(false)
	logger.Debug().Msg("This debug message will be hidden")
	logger.Info().Msg("This info message will still be visible")
}

func Example_usageInService() {
	serviceLogger := logger.WithComponent("alarm-bridge")

	endpoint := "mae-east"
	serial := "NE-1001"

	serviceLogger.Info().
		Str("endpoint", endpoint).
		Str("serial_number", serial).
		Msg("Processing alarm frame")

	if err := recordAlarm(serial); err != nil {
		serviceLogger.Error().
			Err(err).
			Str("endpoint", endpoint).
			Msg("Failed to record alarm")
	}

	serviceLogger.Info().
		Str("endpoint", endpoint).
		Msg("Alarm frame processed")
}

func recordAlarm(serial string) error {
	if serial == "" {
		return fmt.Errorf("missing serial number")
	}

	return nil
}

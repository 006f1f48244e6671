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

package grpc

import (
	"fmt"
	"os"
	"strings"

	"github.com/carverauto/maestream/pkg/models"
)

const (
	certManagerPerms = 0700
)

// CertificateManager checks TLS certificate material before credentials are built,
// so a misconfigured deployment fails with the missing file names instead of a
// handshake error.
type CertificateManager struct {
	config *models.SecurityConfig
}

func NewCertificateManager(config *models.SecurityConfig) *CertificateManager {
	return &CertificateManager{config: config}
}

func (cm *CertificateManager) EnsureCertificateDirectory() error {
	if cm.config.CertDir == "" {
		return nil
	}

	return os.MkdirAll(cm.config.CertDir, certManagerPerms)
}

// ValidateCertificates verifies that every configured certificate file exists.
func (cm *CertificateManager) ValidateCertificates() error {
	required := []string{
		cm.config.TLS.CertFile,
		cm.config.TLS.KeyFile,
		cm.config.TLS.CAFile,
	}

	if cm.config.TLS.ClientCAFile != "" {
		required = append(required, cm.config.TLS.ClientCAFile)
	}

	var missing []string

	for _, file := range required {
		if file == "" {
			continue
		}

		path := resolveCertPath(file, cm.config.CertDir)

		if _, err := os.Stat(path); os.IsNotExist(err) {
			missing = append(missing, path)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", errMissingCerts, strings.Join(missing, ", "))
	}

	return nil
}

// Package storage issues short-lived read/list SAS grants for Azure Blob containers.
// Signing is local; no request is made to the storage account.
package storage

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/sixsideddice/lottie-gateway/internal/apperr"
)

// DefaultExpiry is how long an issued grant stays valid.
const DefaultExpiry = 5 * time.Minute

// Grant is a signed container-scoped SAS.
type Grant struct {
	Token     string
	URL       string
	ExpiresAt time.Time
}

// Issuer signs container SAS tokens with the account shared key.
type Issuer struct {
	accountName string
	accountKey  string
	expiry      time.Duration
	now         func() time.Time

	mu         sync.Mutex
	lastExpiry time.Time
}

func NewIssuer(accountName, accountKey string) *Issuer {
	return &Issuer{
		accountName: accountName,
		accountKey:  accountKey,
		expiry:      DefaultExpiry,
		now:         time.Now,
	}
}

// Issue signs a read+list token for container and appends it to blobPath.
func (i *Issuer) Issue(container, blobPath string) (*Grant, error) {
	if i.accountName == "" || i.accountKey == "" {
		return nil, apperr.MissingSetting("AZURE_STORAGE_ACCOUNT_NAME", "AZURE_STORAGE_ACCOUNT_KEY")
	}
	container = strings.TrimSpace(container)
	if container == "" {
		return nil, apperr.Validation("container_name is required")
	}
	if strings.TrimSpace(blobPath) == "" {
		return nil, apperr.Validation("blob_path is required")
	}

	cred, err := azblob.NewSharedKeyCredential(i.accountName, i.accountKey)
	if err != nil {
		return nil, apperr.Configuration("invalid storage account key: %v", err)
	}

	expiresAt := i.nextExpiry()
	params, err := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		ExpiryTime:    expiresAt,
		Permissions:   (&sas.ContainerPermissions{Read: true, List: true}).String(),
		ContainerName: container,
	}.SignWithSharedKey(cred)
	if err != nil {
		return nil, fmt.Errorf("sign container sas: %w", err)
	}

	token := params.Encode()
	return &Grant{
		Token:     token,
		URL:       blobPath + "?" + token,
		ExpiresAt: expiresAt,
	}, nil
}

// nextExpiry returns now+expiry at second precision, moved past the previous
// grant's expiry when needed so that every grant from this issuer is distinct.
func (i *Issuer) nextExpiry() time.Time {
	i.mu.Lock()
	defer i.mu.Unlock()

	exp := i.now().UTC().Add(i.expiry).Truncate(time.Second)
	if !exp.After(i.lastExpiry) {
		exp = i.lastExpiry.Add(time.Second)
	}
	i.lastExpiry = exp
	return exp
}

package discovery

import (
	"net"

	"github.com/robgonnella/go-lanscan/pkg/oui"
)

//go:generate mockgen -destination=../mock/discovery/mock_discovery.go -package=mock_discovery . VendorRepo

// VendorRepo looks up the manufacturer registered for a MAC prefix
type VendorRepo interface {
	Query(mac net.HardwareAddr) (*oui.VendorResult, error)
}

// NewVendorRepo returns the OUI database kept under the user's config dir
func NewVendorRepo() (VendorRepo, error) {
	repo, err := oui.GetDefaultVendorRepo()

	if err != nil {
		return nil, err
	}

	return repo, nil
}

// Vendor returns the vendor registered for mac, or "" when mac is empty
// or unknown to repo
func Vendor(repo VendorRepo, mac net.HardwareAddr) (string, error) {
	if repo == nil || len(mac) == 0 {
		return "", nil
	}

	result, err := repo.Query(mac)

	if err != nil || result == nil {
		return "", err
	}

	return result.Name, nil
}

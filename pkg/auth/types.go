package auth

import "github.com/yashannadate/stellar-pay/pkg/contracts"

// Principal is the authenticated caller of a request.
type Principal interface {
	GetID() contracts.Identity
	GetRoles() []string
	HasRole(role string) bool
}

// BasePrincipal is a simple implementation of Principal.
type BasePrincipal struct {
	ID    contracts.Identity
	Roles []string
}

func (b *BasePrincipal) GetID() contracts.Identity {
	return b.ID
}

func (b *BasePrincipal) GetRoles() []string {
	return b.Roles
}

func (b *BasePrincipal) HasRole(role string) bool {
	for _, r := range b.Roles {
		if r == role {
			return true
		}
	}
	return false
}

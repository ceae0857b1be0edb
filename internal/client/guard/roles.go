package guard

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/atinyakov/teaadmin/internal/models"
)

// Landing pages.
const (
	StoreLanding = "/store-home"
	AdminLanding = "/dashboard"
	StoreRefuge  = "/store-finance"
)

var storePrefixes = []string{
	"/store-home",
	"/store-mall",
	"/store-orders",
	"/store-refunds",
	"/store-products",
	"/store-settings",
	"/store-finance",
	"/store-accounts",
	"/store-coupons",
	"/store-activities",
	"/stores",
}

var storePath = regexp.MustCompile(`^/stores/(\d+)(/.*)?$`)

// DefaultRoute is where a signed in user lands.
func DefaultRoute(u *models.User) string {
	if u != nil && u.Role == models.RoleStore {
		return StoreLanding
	}
	return AdminLanding
}

// RoleRoute applies the store manager lock to path. Store managers may only
// open store pages, and only those of their own store. It returns the path
// to redirect to, or redirect=false when path may be rendered as is.
func RoleRoute(u *models.User, path string) (target string, redirect bool) {
	if u == nil || u.Role != models.RoleStore {
		return "", false
	}

	allowed := false
	for _, p := range storePrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			allowed = true
			break
		}
	}
	if !allowed {
		return StoreRefuge, true
	}

	own, hasStore := storeOf(u)
	if path == "/stores" || path == "/stores/" {
		if !hasStore {
			return StoreRefuge, true
		}
		return fmt.Sprintf("/stores/%d/orders", own), true
	}

	if !strings.HasPrefix(path, "/stores/") {
		return "", false
	}
	if !hasStore {
		return StoreRefuge, true
	}
	m := storePath.FindStringSubmatch(path)
	if m == nil {
		return "", false
	}
	requested, _ := strconv.ParseInt(m[1], 10, 64)
	suffix := m[2]
	if suffix == "" {
		suffix = "/orders"
	}
	if requested != own || m[2] == "" {
		return fmt.Sprintf("/stores/%d%s", own, suffix), true
	}
	return "", false
}

func storeOf(u *models.User) (int64, bool) {
	if u.StoreID == nil || *u.StoreID <= 0 {
		return 0, false
	}
	return *u.StoreID, true
}

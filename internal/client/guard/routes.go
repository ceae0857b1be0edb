package guard

import "strings"

// Route is a page of the admin shell.
type Route struct {
	Path       string
	Title      string
	Permission string
}

// Routes lists the shell pages. Segments starting with ':' match any single
// path segment. An empty Permission only requires a session.
var Routes = []Route{
	{Path: "/dashboard", Title: "Dashboard"},
	{Path: "/accrual", Title: "Accrual"},
	{Path: "/users", Title: "Users", Permission: "admin:user:manage"},
	{Path: "/rbac", Title: "Roles and permissions", Permission: "admin:user:manage"},
	{Path: "/orders", Title: "Orders"},
	{Path: "/products", Title: "Products"},
	{Path: "/categories", Title: "Categories"},
	{Path: "/stores", Title: "Stores"},
	{Path: "/stores/:id/products", Title: "Store products"},
	{Path: "/stores/:id/orders", Title: "Store orders"},
	{Path: "/stores/:id/refunds", Title: "Store refunds", Permission: "order:refund"},
	{Path: "/stores/:id/mall", Title: "Store mall"},
	{Path: "/store-home", Title: "Store home"},
	{Path: "/store-mall", Title: "Store mall"},
	{Path: "/store-orders", Title: "Store orders"},
	{Path: "/store-refunds", Title: "Store refunds", Permission: "order:refund"},
	{Path: "/store-products", Title: "Store products"},
	{Path: "/store-settings", Title: "Store settings"},
	{Path: "/store-finance", Title: "Store finance"},
	{Path: "/store-accounts", Title: "Store accounts"},
	{Path: "/store-coupons", Title: "Store coupons"},
	{Path: "/store-activities", Title: "Store activities"},
	{Path: "/tickets", Title: "Tickets"},
	{Path: "/commission-rollback", Title: "Commission rollback"},
	{Path: "/finance-summary", Title: "Finance summary"},
	{Path: "/finance-records", Title: "Finance records"},
	{Path: "/membership-config", Title: "Membership config", Permission: "system:config:manage"},
	{Path: "/partners", Title: "Partners"},
	{Path: "/partner-withdrawals", Title: "Partner withdrawals"},
	{Path: "/logs", Title: "Logs"},
	{Path: "/system-settings", Title: "System settings", Permission: "system:config:manage"},
	{Path: "/banners", Title: "Banners"},
	{Path: "/recharge", Title: "Recharge"},
}

// Lookup finds the route matching path.
func Lookup(path string) (Route, bool) {
	path = normalize(path)
	for _, r := range Routes {
		if match(r.Path, path) {
			return r, true
		}
	}
	return Route{}, false
}

func match(pattern, path string) bool {
	ps := strings.Split(strings.Trim(pattern, "/"), "/")
	xs := strings.Split(strings.Trim(path, "/"), "/")
	if len(ps) != len(xs) {
		return false
	}
	for i := range ps {
		if strings.HasPrefix(ps[i], ":") {
			if xs[i] == "" {
				return false
			}
			continue
		}
		if ps[i] != xs[i] {
			return false
		}
	}
	return true
}

func normalize(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}

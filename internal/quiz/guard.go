package quiz

// CanManage reports whether id may administer a resource owned by ownerID:
// admins always may, everyone else only for their own resources. A missing
// identity is denied.
func CanManage(id *Identity, ownerID int64) bool {
	if id == nil || id.UserID == 0 || !id.Role.Valid() {
		return false
	}
	return id.Role == RoleAdmin || id.UserID == ownerID
}

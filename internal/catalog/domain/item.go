package domain

// MenuItem is a catalog entry. Stock is mutated only through the storage
// backend's counter operations; catalog edits never touch it.
type MenuItem struct {
	ID         string
	Name       string
	Category   string
	PriceCents int64
	Stock      int
	Visible    bool
	Deleted    bool
}

// Orderable reports whether the item may appear on a new reservation.
func (i MenuItem) Orderable() bool {
	return i.Visible && !i.Deleted
}

package store

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/atlasbahamas/atlas/internal/model"
)

type PropertyStore struct {
	db *sql.DB
}

func NewPropertyStore(db *sql.DB) *PropertyStore {
	return &PropertyStore{db: db}
}

const propertyCols = `id, owner_account, name, property_type, location, created_at`

func scanProperty(scanner interface{ Scan(...any) error }) (*model.Property, error) {
	var p model.Property
	if err := scanner.Scan(&p.ID, &p.OwnerAccount, &p.Name, &p.PropertyType, &p.Location, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

const unitCols = `id, property_id, unit_label, beds, baths, rent, is_occupied, created_at`

func scanUnit(scanner interface{ Scan(...any) error }) (*model.Unit, error) {
	var u model.Unit
	var occupied int
	if err := scanner.Scan(&u.ID, &u.PropertyID, &u.Label, &u.Beds, &u.Baths, &u.Rent, &occupied, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.IsOccupied = occupied != 0
	return &u, nil
}

// NewProperty describes a property registration with its units.
type NewProperty struct {
	OwnerAccount string
	Code         string
	Name         string
	PropertyType string
	Location     string
	UnitLabels   []string
	Beds         int
	Baths        int
	Rent         int64
}

var codeCleaner = regexp.MustCompile(`[^A-Z0-9-]+`)

// Create inserts the property and its units. The id is "{owner}-{CODE}" or
// "{owner}-{unix}" when no code is given, suffixed -2, -3... on collision.
func (s *PropertyStore) Create(np NewProperty) (*model.Property, error) {
	code := strings.Trim(codeCleaner.ReplaceAllString(strings.ToUpper(np.Code), ""), "-")
	base := np.OwnerAccount + "-" + code
	if code == "" {
		base = fmt.Sprintf("%s-%d", np.OwnerAccount, time.Now().Unix())
	}

	var id string
	err := withTx(s.db, func(tx *sql.Tx) error {
		id = base
		for n := 2; ; n++ {
			var one int
			err := tx.QueryRow(`SELECT 1 FROM properties WHERE id = ?`, id).Scan(&one)
			if err == sql.ErrNoRows {
				break
			}
			if err != nil {
				return fmt.Errorf("check property id: %w", err)
			}
			id = fmt.Sprintf("%s-%d", base, n)
		}

		_, err := tx.Exec(
			`INSERT INTO properties (id, owner_account, name, property_type, location) VALUES (?, ?, ?, ?, ?)`,
			id, np.OwnerAccount, np.Name, np.PropertyType, np.Location,
		)
		if err != nil {
			return fmt.Errorf("insert property: %w", err)
		}
		for _, label := range np.UnitLabels {
			_, err := tx.Exec(
				`INSERT INTO units (property_id, unit_label, beds, baths, rent) VALUES (?, ?, ?, ?, ?)`,
				id, label, max(np.Beds, 0), max(np.Baths, 0), max(np.Rent, 0),
			)
			if err != nil {
				return fmt.Errorf("insert unit %q: %w", label, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(id)
}

func (s *PropertyStore) Get(id string) (*model.Property, error) {
	p, err := scanProperty(s.db.QueryRow(`SELECT `+propertyCols+` FROM properties WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get property: %w", err)
	}
	return p, nil
}

func (s *PropertyStore) ListByOwner(account string) ([]model.Property, error) {
	rows, err := s.db.Query(`SELECT `+propertyCols+` FROM properties WHERE owner_account = ? ORDER BY created_at DESC, id`, account)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	defer rows.Close()

	var out []model.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// OwnedBy reports whether account owns propertyID.
func (s *PropertyStore) OwnedBy(propertyID, account string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM properties WHERE id = ? AND owner_account = ?`, propertyID, account).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check property owner: %w", err)
	}
	return true, nil
}

func (s *PropertyStore) Units(propertyID string) ([]model.Unit, error) {
	return s.listUnits(`property_id = ?`, propertyID)
}

// UnitsByOwner returns every unit across the owner's properties.
func (s *PropertyStore) UnitsByOwner(account string) ([]model.Unit, error) {
	return s.listUnits(`property_id IN (SELECT id FROM properties WHERE owner_account = ?)`, account)
}

func (s *PropertyStore) listUnits(cond string, arg any) ([]model.Unit, error) {
	rows, err := s.db.Query(`SELECT `+unitCols+` FROM units WHERE `+cond+` ORDER BY property_id, unit_label`, arg)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()

	var out []model.Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (s *PropertyStore) GetUnit(propertyID, label string) (*model.Unit, error) {
	u, err := scanUnit(s.db.QueryRow(`SELECT `+unitCols+` FROM units WHERE property_id = ? AND unit_label = ?`, propertyID, label))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get unit: %w", err)
	}
	return u, nil
}

func (s *PropertyStore) GetUnitByID(id int64) (*model.Unit, error) {
	u, err := scanUnit(s.db.QueryRow(`SELECT `+unitCols+` FROM units WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get unit: %w", err)
	}
	return u, nil
}

func (s *PropertyStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM properties`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count properties: %w", err)
	}
	return n, nil
}

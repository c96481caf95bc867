package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rocasol/solarmon/pkg/models"
	_ "modernc.org/sqlite"
)

// DB wraps the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables. Reading tables carry the UNIQUE
// constraints the idempotent upserts depend on.
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		plant_code TEXT UNIQUE,
		vendor TEXT NOT NULL,
		capacity_ac REAL,
		capacity_dc REAL,
		commissioned TEXT
	);
	CREATE TABLE IF NOT EXISTS inverters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL REFERENCES projects(id),
		serial TEXT NOT NULL UNIQUE,
		dev_type_id TEXT
	);
	CREATE TABLE IF NOT EXISTS channels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		inverter_id INTEGER NOT NULL REFERENCES inverters(id),
		serial TEXT NOT NULL,
		kind TEXT NOT NULL,
		UNIQUE(inverter_id, serial)
	);
	CREATE TABLE IF NOT EXISTS project_readings (
		project_id INTEGER NOT NULL REFERENCES projects(id),
		date TEXT NOT NULL,
		energy_kwh REAL NOT NULL,
		UNIQUE(project_id, date)
	);
	CREATE TABLE IF NOT EXISTS inverter_readings (
		project_id INTEGER NOT NULL REFERENCES projects(id),
		inverter_id INTEGER NOT NULL REFERENCES inverters(id),
		date TEXT NOT NULL,
		energy_kwh REAL NOT NULL,
		UNIQUE(inverter_id, date)
	);
	CREATE TABLE IF NOT EXISTS channel_readings (
		project_id INTEGER NOT NULL REFERENCES projects(id),
		inverter_id INTEGER NOT NULL REFERENCES inverters(id),
		channel_id INTEGER NOT NULL REFERENCES channels(id),
		date TEXT NOT NULL,
		energy_kwh REAL NOT NULL,
		UNIQUE(channel_id, date)
	);
	CREATE INDEX IF NOT EXISTS idx_inverters_project ON inverters(project_id);
	CREATE INDEX IF NOT EXISTS idx_project_readings_date ON project_readings(date);
	CREATE INDEX IF NOT EXISTS idx_inverter_readings_date ON inverter_readings(date);
	CREATE INDEX IF NOT EXISTS idx_channel_readings_date ON channel_readings(date);
	`

	_, err := db.conn.Exec(schema)
	return err
}

const dateLayout = "2006-01-02"

// UpsertProject inserts or updates a project keyed by its vendor plant code.
// Registration-time only; the ingestion runs never create projects.
func (db *DB) UpsertProject(p *models.Project) (int64, error) {
	query := `
	INSERT INTO projects (name, plant_code, vendor, capacity_ac, capacity_dc, commissioned)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(plant_code) DO UPDATE SET name = excluded.name, vendor = excluded.vendor
	`
	var commissioned string
	if !p.Commissioned.IsZero() {
		commissioned = p.Commissioned.Format(dateLayout)
	}
	if _, err := db.conn.Exec(query, p.Name, p.PlantCode, string(p.Vendor), p.CapacityAC, p.CapacityDC, commissioned); err != nil {
		return 0, fmt.Errorf("upserting project: %w", err)
	}

	var id int64
	if err := db.conn.QueryRow(`SELECT id FROM projects WHERE plant_code = ?`, p.PlantCode).Scan(&id); err != nil {
		return 0, fmt.Errorf("reading back project id: %w", err)
	}
	return id, nil
}

// UpsertInverter inserts or updates an inverter keyed by its device serial.
// Registration-time only.
func (db *DB) UpsertInverter(inv *models.Inverter) (int64, error) {
	query := `
	INSERT INTO inverters (project_id, serial, dev_type_id)
	VALUES (?, ?, ?)
	ON CONFLICT(serial) DO UPDATE SET project_id = excluded.project_id, dev_type_id = excluded.dev_type_id
	`
	if _, err := db.conn.Exec(query, inv.ProjectID, inv.Serial, inv.DevTypeID); err != nil {
		return 0, fmt.Errorf("upserting inverter: %w", err)
	}

	var id int64
	if err := db.conn.QueryRow(`SELECT id FROM inverters WHERE serial = ?`, inv.Serial).Scan(&id); err != nil {
		return 0, fmt.Errorf("reading back inverter id: %w", err)
	}
	return id, nil
}

// ProjectByPlantCode looks up a project by vendor plant code. Returns nil
// without error when no project is registered for the code.
func (db *DB) ProjectByPlantCode(code string) (*models.Project, error) {
	row := db.conn.QueryRow(`SELECT id, name, plant_code, vendor FROM projects WHERE plant_code = ?`, code)

	var p models.Project
	var vendor string
	err := row.Scan(&p.ID, &p.Name, &p.PlantCode, &vendor)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying project by plant code: %w", err)
	}
	p.Vendor = models.Vendor(vendor)
	return &p, nil
}

// InverterBySerial looks up an inverter by its exact device serial. Returns
// nil without error when unregistered.
func (db *DB) InverterBySerial(serial string) (*models.Inverter, error) {
	row := db.conn.QueryRow(`SELECT id, project_id, serial, COALESCE(dev_type_id, '') FROM inverters WHERE serial = ?`, serial)

	var inv models.Inverter
	err := row.Scan(&inv.ID, &inv.ProjectID, &inv.Serial, &inv.DevTypeID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying inverter by serial: %w", err)
	}
	return &inv, nil
}

// InverterBySerialSuffix looks up an inverter whose serial ends with the
// given digit suffix. The history endpoint reports numeric device ids whose
// last 8 digits match the registered serial's tail; serial collisions on the
// suffix would silently pick the lowest id (see DESIGN.md).
func (db *DB) InverterBySerialSuffix(suffix string) (*models.Inverter, error) {
	row := db.conn.QueryRow(
		`SELECT id, project_id, serial, COALESCE(dev_type_id, '') FROM inverters WHERE serial LIKE '%' || ? ORDER BY id LIMIT 1`,
		suffix,
	)

	var inv models.Inverter
	err := row.Scan(&inv.ID, &inv.ProjectID, &inv.Serial, &inv.DevTypeID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying inverter by serial suffix: %w", err)
	}
	return &inv, nil
}

// ListInverters returns all registered inverters for a vendor, optionally
// filtered by device-type tag.
func (db *DB) ListInverters(vendor models.Vendor, devTypeID string) ([]models.Inverter, error) {
	query := `
	SELECT i.id, i.project_id, i.serial, COALESCE(i.dev_type_id, '')
	FROM inverters i JOIN projects p ON p.id = i.project_id
	WHERE p.vendor = ?
	`
	args := []any{string(vendor)}
	if devTypeID != "" {
		query += ` AND i.dev_type_id = ?`
		args = append(args, devTypeID)
	}
	query += ` ORDER BY i.id`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing inverters: %w", err)
	}
	defer rows.Close()

	var out []models.Inverter
	for rows.Next() {
		var inv models.Inverter
		if err := rows.Scan(&inv.ID, &inv.ProjectID, &inv.Serial, &inv.DevTypeID); err != nil {
			return nil, fmt.Errorf("scanning inverter row: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// CountProjects returns the number of registered projects for a vendor.
func (db *DB) CountProjects(vendor models.Vendor) (int, error) {
	var n int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM projects WHERE vendor = ?`, string(vendor)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting projects: %w", err)
	}
	return n, nil
}

// EnsureChannel returns the id of the (inverter, serial) channel, creating it
// on first observation. The UNIQUE(inverter_id, serial) constraint makes the
// insert-then-select safe against concurrent runs.
func (db *DB) EnsureChannel(inverterID int64, serial, kind string) (int64, error) {
	if _, err := db.conn.Exec(
		`INSERT OR IGNORE INTO channels (inverter_id, serial, kind) VALUES (?, ?, ?)`,
		inverterID, serial, kind,
	); err != nil {
		return 0, fmt.Errorf("creating channel: %w", err)
	}

	var id int64
	err := db.conn.QueryRow(
		`SELECT id FROM channels WHERE inverter_id = ? AND serial = ?`,
		inverterID, serial,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("reading back channel id: %w", err)
	}
	return id, nil
}

// UpsertProjectReading writes the (project, date) energy fact, overwriting
// any prior value for the same key.
func (db *DB) UpsertProjectReading(projectID int64, date time.Time, energyKWh float64) error {
	query := `
	INSERT INTO project_readings (project_id, date, energy_kwh)
	VALUES (?, ?, ?)
	ON CONFLICT(project_id, date) DO UPDATE SET energy_kwh = excluded.energy_kwh
	`
	if _, err := db.conn.Exec(query, projectID, date.Format(dateLayout), energyKWh); err != nil {
		return fmt.Errorf("upserting project reading: %w", err)
	}
	return nil
}

// UpsertInverterReading writes the (inverter, date) energy fact.
func (db *DB) UpsertInverterReading(projectID, inverterID int64, date time.Time, energyKWh float64) error {
	query := `
	INSERT INTO inverter_readings (project_id, inverter_id, date, energy_kwh)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(inverter_id, date) DO UPDATE SET energy_kwh = excluded.energy_kwh
	`
	if _, err := db.conn.Exec(query, projectID, inverterID, date.Format(dateLayout), energyKWh); err != nil {
		return fmt.Errorf("upserting inverter reading: %w", err)
	}
	return nil
}

// UpsertChannelReading writes the (channel, date) energy fact.
func (db *DB) UpsertChannelReading(projectID, inverterID, channelID int64, date time.Time, energyKWh float64) error {
	query := `
	INSERT INTO channel_readings (project_id, inverter_id, channel_id, date, energy_kwh)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(channel_id, date) DO UPDATE SET energy_kwh = excluded.energy_kwh
	`
	if _, err := db.conn.Exec(query, projectID, inverterID, channelID, date.Format(dateLayout), energyKWh); err != nil {
		return fmt.Errorf("upserting channel reading: %w", err)
	}
	return nil
}

// ProjectReadingRow is a stored project-level daily reading with its project
// name, for display.
type ProjectReadingRow struct {
	ProjectName string
	Date        time.Time
	EnergyKWh   float64
}

// ListProjectReadings returns stored project readings, newest first,
// optionally filtered by vendor.
func (db *DB) ListProjectReadings(vendor models.Vendor) ([]ProjectReadingRow, error) {
	query := `
	SELECT p.name, r.date, r.energy_kwh
	FROM project_readings r JOIN projects p ON p.id = r.project_id
	`
	args := []any{}
	if vendor != "" {
		query += ` WHERE p.vendor = ?`
		args = append(args, string(vendor))
	}
	query += ` ORDER BY r.date DESC, p.name`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing project readings: %w", err)
	}
	defer rows.Close()

	var out []ProjectReadingRow
	for rows.Next() {
		var row ProjectReadingRow
		var dateStr string
		if err := rows.Scan(&row.ProjectName, &dateStr, &row.EnergyKWh); err != nil {
			return nil, fmt.Errorf("scanning reading row: %w", err)
		}
		row.Date, err = time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("parsing date: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CountReadings returns row counts for the three reading tables.
func (db *DB) CountReadings() (project, inverter, channel int, err error) {
	if err = db.conn.QueryRow(`SELECT COUNT(*) FROM project_readings`).Scan(&project); err != nil {
		return
	}
	if err = db.conn.QueryRow(`SELECT COUNT(*) FROM inverter_readings`).Scan(&inverter); err != nil {
		return
	}
	err = db.conn.QueryRow(`SELECT COUNT(*) FROM channel_readings`).Scan(&channel)
	return
}

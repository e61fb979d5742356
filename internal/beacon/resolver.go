package beacon

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ignatzorin/campus-complaints-backend/internal/models"
	"github.com/ignatzorin/campus-complaints-backend/internal/pkg/apperror"
)

// Resolver сопоставляет имя обнаруженного маячка зоне кампуса.
// Само обнаружение маячков выполняется на устройстве.
type Resolver interface {
	Resolve(ctx context.Context, campusID, beaconName string) (models.Area, error)
}

type fileBeacon struct {
	Beacon string      `yaml:"beacon"`
	Area   models.Area `yaml:"area"`
}

type fileFormat struct {
	Campuses map[string][]fileBeacon `yaml:"campuses"`
}

// StaticResolver карта маячков, загруженная из YAML.
type StaticResolver struct {
	areas map[string]map[string]models.Area
}

// NewStaticResolver создаёт пустой резолвер.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{areas: make(map[string]map[string]models.Area)}
}

// LoadFile читает карту маячков из файла.
func LoadFile(path string) (*StaticResolver, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("beacon: не удалось открыть %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load читает карту маячков из YAML.
func Load(r io.Reader) (*StaticResolver, error) {
	var doc fileFormat
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("beacon: некорректный YAML: %w", err)
	}

	res := NewStaticResolver()
	for campusID, beacons := range doc.Campuses {
		for _, b := range beacons {
			if b.Beacon == "" || b.Area.Name == "" {
				return nil, fmt.Errorf("beacon: в кампусе %s запись без имени маячка или зоны", campusID)
			}
			res.Add(campusID, b.Beacon, b.Area)
		}
	}
	return res, nil
}

// Add регистрирует маячок.
func (r *StaticResolver) Add(campusID, beaconName string, area models.Area) {
	byName, ok := r.areas[campusID]
	if !ok {
		byName = make(map[string]models.Area)
		r.areas[campusID] = byName
	}
	byName[normalize(beaconName)] = area
}

// Resolve ищет зону по точному имени без учёта регистра и пробелов по краям.
func (r *StaticResolver) Resolve(_ context.Context, campusID, beaconName string) (models.Area, error) {
	if campusID == "" {
		return models.Area{}, apperror.ErrCampusRequired
	}
	area, ok := r.areas[campusID][normalize(beaconName)]
	if !ok {
		return models.Area{}, apperror.ErrBeaconUnknown
	}
	return area, nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

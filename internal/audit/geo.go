package audit

import (
	"errors"
	"net"

	"github.com/infolock/server/internal/model"
	"github.com/oschwald/geoip2-golang"
)

var ErrInvalidIP = errors.New("invalid IP address")

// Geolocator resolves a client IP to a coarse location
type Geolocator interface {
	Lookup(ip string) (*model.Location, error)
}

// MaxMindGeolocator reads a local MaxMind City database
type MaxMindGeolocator struct {
	db *geoip2.Reader
}

// NewMaxMindGeolocator opens a MaxMind City database
func NewMaxMindGeolocator(dbPath string) (*MaxMindGeolocator, error) {
	db, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, err
	}
	return &MaxMindGeolocator{db: db}, nil
}

// Lookup returns nil for private and loopback addresses
func (g *MaxMindGeolocator) Lookup(ip string) (*model.Location, error) {
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return nil, ErrInvalidIP
	}
	if parsedIP.IsLoopback() || parsedIP.IsPrivate() || parsedIP.IsUnspecified() {
		return nil, nil
	}

	record, err := g.db.City(parsedIP)
	if err != nil {
		return nil, err
	}
	loc := &model.Location{
		Country:   record.Country.Names["en"],
		City:      record.City.Names["en"],
		Latitude:  record.Location.Latitude,
		Longitude: record.Location.Longitude,
	}
	if *loc == (model.Location{}) {
		return nil, nil
	}
	return loc, nil
}

func (g *MaxMindGeolocator) Close() error {
	return g.db.Close()
}

// NoGeolocation is used when no database is configured
type NoGeolocation struct{}

func (NoGeolocation) Lookup(string) (*model.Location, error) { return nil, nil }

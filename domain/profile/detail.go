package profile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cosolvent/cosolvent/domain/fault"
	"github.com/go-playground/validator/v10"
)

// Verification status values.
const (
	VerificationUnverified = "unverified"
	VerificationPending    = "pending"
	VerificationVerified   = "verified"
)

// Detail is the structured producer profile generated from assets and
// reviewed before approval.
type Detail struct {
	FarmName        string          `json:"farm_name" validate:"required" jsonschema:"description=Name of the farm or business"`
	ContactPerson   string          `json:"contact_person" validate:"required" jsonschema:"description=Primary contact person"`
	Description     string          `json:"description,omitempty" jsonschema:"description=Short description of the farm and what it produces"`
	ProfileImageURL string          `json:"profile_image_url,omitempty"`
	Location        Location        `json:"location"`
	Contact         Contact         `json:"contact"`
	BusinessDetails BusinessDetails `json:"business_details"`
	Certifications  []Certification `json:"certifications,omitempty" validate:"dive"`
	FarmDetails     FarmDetails     `json:"farm_details"`
	Products        []Product       `json:"products,omitempty" validate:"dive"`
	Logistics       Logistics       `json:"logistics"`
	PaymentTerms    PaymentTerms    `json:"payment_terms"`
	Verification    Verification    `json:"verification"`
	Communication   Communication   `json:"communication"`
	CreatedAt       *time.Time      `json:"created_at,omitempty"`
	UpdatedAt       *time.Time      `json:"updated_at,omitempty"`
}

// Coordinates is a geographic point.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Location describes where the farm is.
type Location struct {
	Province    string       `json:"province,omitempty" jsonschema:"description=Province or region"`
	City        string       `json:"city,omitempty"`
	AddressLine string       `json:"address_line,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// Contact holds public contact channels.
type Contact struct {
	Website     string   `json:"website,omitempty"`
	SocialLinks []string `json:"social_links,omitempty"`
}

// Document is a business document reference.
type Document struct {
	Name       string     `json:"name" validate:"required"`
	URL        string     `json:"url" validate:"required"`
	UploadedAt *time.Time `json:"uploaded_at,omitempty"`
}

// BusinessDetails holds registration and compliance information.
type BusinessDetails struct {
	EntityType         string     `json:"entity_type,omitempty"`
	RegistrationNumber string     `json:"registration_number,omitempty"`
	InsuranceInfo      string     `json:"insurance_info,omitempty"`
	TaxInfo            string     `json:"tax_info,omitempty"`
	Docs               []Document `json:"docs,omitempty" validate:"dive"`
}

// Certification is a certificate held by the producer.
type Certification struct {
	Name        string `json:"name" validate:"required" jsonschema:"description=Certification name such as organic or fair-trade"`
	Issuer      string `json:"issuer,omitempty"`
	ValidFrom   *Date  `json:"valid_from,omitempty"`
	ValidTo     *Date  `json:"valid_to,omitempty"`
	DocumentURL string `json:"document_url,omitempty"`
}

// FarmDetails describes the farm itself.
type FarmDetails struct {
	Acreage             *float64 `json:"acreage,omitempty"`
	Practices           []string `json:"practices,omitempty"`
	PlantingStart       *Date    `json:"planting_start,omitempty"`
	HarvestEnd          *Date    `json:"harvest_end,omitempty"`
	SustainabilityNotes string   `json:"sustainability_notes,omitempty"`
}

// Product is something the producer sells.
type Product struct {
	Name                string   `json:"name" validate:"required"`
	Category            string   `json:"category" validate:"required" jsonschema:"description=Crop or product category such as wheat"`
	Variety             string   `json:"variety,omitempty"`
	QuantityAvailable   *float64 `json:"quantity_available,omitempty"`
	Unit                string   `json:"unit" validate:"required" jsonschema:"description=Unit of quantity such as tonnes"`
	PriceMin            *float64 `json:"price_min,omitempty"`
	PriceMax            *float64 `json:"price_max,omitempty"`
	PriceCurrency       string   `json:"price_currency,omitempty"`
	HarvestDate         *Date    `json:"harvest_date,omitempty"`
	DeliveryWindowStart *Date    `json:"delivery_window_start,omitempty"`
	DeliveryWindowEnd   *Date    `json:"delivery_window_end,omitempty"`
	Incoterms           []string `json:"incoterms,omitempty"`
	PackagingOptions    []string `json:"packaging_options,omitempty"`
	MinOrderQuantity    *float64 `json:"min_order_quantity,omitempty"`
	DeliveryLocation    string   `json:"delivery_location,omitempty"`
}

// Logistics describes shipping capabilities.
type Logistics struct {
	NearestPorts     []string `json:"nearest_ports,omitempty"`
	TransportOptions []string `json:"transport_options,omitempty"`
	StorageCapacity  string   `json:"storage_capacity,omitempty"`
	ExportExperience string   `json:"export_experience,omitempty"`
}

// PaymentTerms describes accepted payment arrangements.
type PaymentTerms struct {
	Methods             []string `json:"methods,omitempty"`
	TermsDescription    string   `json:"terms_description,omitempty"`
	CurrencyPreferences []string `json:"currency_preferences,omitempty"`
}

// Verification tracks manual verification of the producer.
type Verification struct {
	Status     string     `json:"status,omitempty" validate:"omitempty,oneof=unverified pending verified" jsonschema:"enum=unverified,enum=pending,enum=verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// Communication holds language and responsiveness preferences.
type Communication struct {
	Languages            []string `json:"languages,omitempty"`
	ResponseTimeEstimate string   `json:"response_time_estimate,omitempty"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func detailValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks required fields and enumerations.
func (d Detail) Validate() error {
	err := detailValidator().Struct(d)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", fault.ErrValidation, err)
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fault.Validation("profile: %s", strings.Join(problems, "; "))
}

// DecodeDetail strictly decodes a JSON document into a Detail, rejecting
// unknown fields, and validates it.
func DecodeDetail(data []byte) (Detail, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var d Detail
	if err := dec.Decode(&d); err != nil {
		return Detail{}, fault.Validation("profile: decode: %v", err)
	}
	if dec.More() {
		return Detail{}, fault.Validation("profile: trailing data after JSON object")
	}
	if err := d.Validate(); err != nil {
		return Detail{}, err
	}
	return d, nil
}

// Clone returns a deep copy of the detail.
func (d Detail) Clone() Detail {
	data, err := json.Marshal(d)
	if err != nil {
		return d
	}
	var out Detail
	if err := json.Unmarshal(data, &out); err != nil {
		return d
	}
	return out
}

package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/donabox/api/internal/domain"
	"github.com/donabox/api/internal/platform/storage"
)

const csvContentType = "text/csv; charset=utf-8"

var exportHeader = []string{"ID", "Nombre", "Donas", "Precio", "Status", "Entrega", "Canal", "PuntoVenta"}

// ExportServiceDeps bundles collaborators for order exports.
type ExportServiceDeps struct {
	Orders   OrderService
	Uploader ExportUploader
	Bucket   string
	Prefix   string
	Location *time.Location
	Clock    func() time.Time
	IDGen    func() string
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type exportService struct {
	orders   OrderService
	uploader ExportUploader
	bucket   string
	prefix   string
	location *time.Location
	now      func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

var _ ExportService = (*exportService)(nil)

// NewExportService constructs the CSV export service. Uploading is enabled only
// when both an uploader and a bucket are configured.
func NewExportService(deps ExportServiceDeps) (ExportService, error) {
	if deps.Orders == nil {
		return nil, errors.New("export service: order service is required")
	}
	prefix := strings.TrimSpace(deps.Prefix)
	if prefix == "" {
		prefix = "exports/orders"
	}
	location := deps.Location
	if location == nil {
		location = time.UTC
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &exportService{
		orders:   deps.Orders,
		uploader: deps.Uploader,
		bucket:   strings.TrimSpace(deps.Bucket),
		prefix:   prefix,
		location: location,
		now:      func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
	}, nil
}

func (s *exportService) ExportOrders(ctx context.Context, caller Caller, query ListOrdersQuery) (OrderExport, error) {
	// List performs the privilege check.
	orders, err := s.orders.List(ctx, caller, query)
	if err != nil {
		return OrderExport{}, err
	}

	data, err := renderOrdersCSV(orders)
	if err != nil {
		return OrderExport{}, fmt.Errorf("export: render csv: %w", err)
	}

	now := s.now()
	date := now.In(s.location).Format("2006-01-02")
	exportID := s.newID()
	export := OrderExport{
		FileName:    fmt.Sprintf("pedidos-%s.csv", date),
		ContentType: csvContentType,
		Data:        data,
		Rows:        len(orders),
		GeneratedAt: now,
	}

	if s.uploader != nil && s.bucket != "" {
		object, err := storage.BuildExportPath(storage.ExportPathParams{Prefix: s.prefix, Date: date, ExportID: exportID})
		if err != nil {
			return OrderExport{}, fmt.Errorf("export: build path: %w", err)
		}
		location, err := s.uploader.Upload(ctx, s.bucket, object, csvContentType, data)
		if err != nil {
			// The inline CSV is still returned; the archive copy is best effort.
			s.logger(ctx, "export.upload.failed", map[string]any{"object": object, "error": err.Error()})
		} else {
			export.Location = location
		}
	}

	s.logger(ctx, "export.generated", map[string]any{
		"rows":     export.Rows,
		"location": export.Location,
		"actor":    caller.UID,
	})
	return export, nil
}

func renderOrdersCSV(orders []Order) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, order := range orders {
		row := []string{
			order.ID,
			spreadsheetSafe(order.Contact.Name),
			strconv.Itoa(order.Units),
			strconv.FormatInt(order.Price, 10),
			paymentLabel(order.PaymentStatus),
			order.DeliveryDate.String(),
			channelLabel(order.Channel),
			spreadsheetSafe(order.Outlet),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// spreadsheetSafe quotes customer text that a spreadsheet would evaluate as a formula.
func spreadsheetSafe(value string) string {
	if value != "" && strings.ContainsRune("=+-@\t\r", rune(value[0])) {
		return "'" + value
	}
	return value
}

func paymentLabel(status domain.PaymentStatus) string {
	if status == domain.PaymentPaid {
		return "Pagado"
	}
	return "No pagado"
}

func channelLabel(channel domain.Channel) string {
	if channel == domain.ChannelRetail {
		return "Punto de venta"
	}
	return "Personal"
}

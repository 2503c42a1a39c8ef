package types

// TimeSelectionMode governs how a weather series is reduced to a scalar:
// a nearest-hour sample in Single mode, an arithmetic mean in Range mode.
type TimeSelectionMode string

const (
	ModeSingle TimeSelectionMode = "single"
	ModeRange  TimeSelectionMode = "range"
)

// ComparisonOperator is the comparison used by a ColorRule.
type ComparisonOperator string

const (
	OpLessThan      ComparisonOperator = "<"
	OpLessThanEq    ComparisonOperator = "<="
	OpEqual         ComparisonOperator = "="
	OpGreaterThanEq ComparisonOperator = ">="
	OpGreaterThan   ComparisonOperator = ">"
)

// VariableField identifies an hourly variable in the archive API.
// Values match the archive's query parameter names verbatim.
type VariableField string

const (
	FieldTemperature   VariableField = "temperature_2m"
	FieldHumidity      VariableField = "relativehumidity_2m"
	FieldPrecipitation VariableField = "precipitation"
)

// ChartKind selects the rendering style of the chart widget.
type ChartKind string

const (
	ChartBar  ChartKind = "bar"
	ChartLine ChartKind = "line"
	ChartArea ChartKind = "area"
)

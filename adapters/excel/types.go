package excel

// rawTable is a sheet or CSV file as trimmed header plus string records
type rawTable struct {
	header []string
	rows   [][]string
}

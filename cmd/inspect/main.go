// Command inspect prints the messages stored in a Badger database.
package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/Tyrowin/directchat/internal/store"
	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	limit := flag.Int("limit", 0, "Maximum number of messages to print, 0 for all")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).WithReadOnly(true).WithLoggingLevel(badger.ERROR))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Created", "Sender", "Recipient", "Text", "File"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	messages := store.NewBadgerMessageStore(db, logs.GetLoggerFromString("ERROR"))
	err = messages.Scan(*limit, func(m store.Message) bool {
		table.Append([]string{
			m.ID,
			m.CreatedAt.Local().Format(time.DateTime),
			m.Sender,
			m.Recipient,
			lo.FromPtr(m.Text),
			lo.FromPtrOr(m.File, "-"),
		})
		return true
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

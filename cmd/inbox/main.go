package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"trainer-chat/auth"
	"trainer-chat/infrastructure/storage"
	"trainer-chat/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

// inbox prints the chat list of one principal straight from a Badger directory.
// The database is opened read-only so it can run next to a live server.
func main() {
	principal := flag.String("principal", "", "Principal whose inbox is printed")
	raw := flag.Bool("raw", false, "Dump every record instead of the inbox")
	flag.Parse()

	_ = godotenv.Load()
	config, err := LoadConfig()
	if err != nil {
		log.Fatal("Config error: ", err)
	}

	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	if *raw {
		printHeader(config, "records")
		if err = dump(db); err != nil {
			log.Fatal(err)
		}
		return
	}

	if err = auth.ValidatePrincipalID(*principal); err != nil {
		log.Fatal("A valid -principal is required: ", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	chatList := services.NewChatListAggregator(logger,
		storage.NewMessageStore(db, logger),
		storage.NewProfileRepository(db),
		services.DefaultProfileLookupConcurrency)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := chatList.ListConversations(ctx, *principal)
	if err != nil {
		log.Fatal(err)
	}

	printHeader(config, fmt.Sprintf("inbox of %s (%d)", *principal, len(entries)))
	table := newTable([]string{"Counterpart", "Name", "Email", "Last message", "At"})
	for _, e := range entries {
		table.Append([]string{
			e.CounterpartID,
			e.Name,
			e.Email,
			e.LastMessage,
			e.LastMessageTime.Local().Format(time.DateTime),
		})
	}
	table.Render()
}

func dump(db *badger.DB) error {
	table := newTable([]string{"Key", "Type", "Detail"})
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(v []byte) error {
				kind, detail := storage.Describe(key, v)
				table.Append([]string{key, kind, detail})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	table.Render()
	return nil
}

func newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
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
	return table
}

func printHeader(config Config, title string) {
	header := fmt.Sprintf("  ====== %s ======", title)
	if config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	fmt.Println(header)
}

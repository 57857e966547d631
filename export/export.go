// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package export

import (
	"errors"
	"io"
	"sort"

	"github.com/gocarina/gocsv"
	"github.com/penny-vault/bistdata/data"
	"github.com/rs/zerolog/log"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

const (
	FormatParquet = "parquet"
	FormatCSV     = "csv"
)

var (
	ErrUnknownFormat = errors.New("unknown export format")
)

// Row is one value of one line item in the long export layout
type Row struct {
	Ticker   string   `csv:"ticker" parquet:"name=ticker, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Item     string   `csv:"item" parquet:"name=item, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Code     string   `csv:"code" parquet:"name=code, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	LabelTr  string   `csv:"label_tr" parquet:"name=label_tr, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	LabelEn  string   `csv:"label_en" parquet:"name=label_en, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Period   string   `csv:"period" parquet:"name=period, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Year     int32    `csv:"year" parquet:"name=year, type=INT32"`
	Quarter  int32    `csv:"quarter" parquet:"name=quarter, type=INT32"`
	Currency string   `csv:"currency" parquet:"name=currency, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Value    *float64 `csv:"value" parquet:"name=value, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// Flatten turns snapshots into rows ordered by ticker, item and period. Every
// covered period yields a row for every item; missing values are nil.
func Flatten(snapshots []*data.Snapshot) []*Row {
	rows := make([]*Row, 0)

	ordered := append([]*data.Snapshot{}, snapshots...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Meta.Ticker < ordered[j].Meta.Ticker
	})

	for _, snapshot := range ordered {
		periods := make([]data.Period, 0, len(snapshot.Meta.PeriodKeys))
		for _, key := range data.MergePeriodKeys(snapshot.Meta.PeriodKeys) {
			period, err := key.Period()
			if err != nil {
				log.Warn().Err(err).Str("Ticker", snapshot.Meta.Ticker).Str("Period", string(key)).Msg("skipping unparseable period")
				continue
			}
			periods = append(periods, period)
		}

		itemKeys := make([]string, 0, len(snapshot.Items))
		for key := range snapshot.Items {
			itemKeys = append(itemKeys, key)
		}
		sort.Strings(itemKeys)

		for _, itemKey := range itemKeys {
			item := snapshot.Items[itemKey]
			for _, period := range periods {
				row := &Row{
					Ticker:   snapshot.Meta.Ticker,
					Item:     itemKey,
					Code:     item.Code,
					LabelTr:  item.LabelTr,
					LabelEn:  item.LabelEn,
					Period:   string(period.Key()),
					Year:     int32(period.Year),
					Quarter:  int32(period.Quarter),
					Currency: snapshot.Meta.Currency,
				}
				if val := item.Values[period.Key()]; val != nil {
					copied := *val
					row.Value = &copied
				}
				rows = append(rows, row)
			}
		}
	}

	return rows
}

// WriteParquet saves rows as a zstd compressed parquet file
func WriteParquet(rows []*Row, fn string) error {
	fh, err := local.NewLocalFileWriter(fn)
	if err != nil {
		log.Error().Err(err).Str("FileName", fn).Msg("cannot create local file")
		return err
	}
	defer fh.Close()

	pw, err := writer.NewParquetWriter(fh, new(Row), 4)
	if err != nil {
		log.Error().Err(err).Msg("parquet write failed")
		return err
	}

	pw.RowGroupSize = 128 * 1024 * 1024 // 128M
	pw.PageSize = 8 * 1024              // 8k
	pw.CompressionType = parquet.CompressionCodec_ZSTD

	for _, row := range rows {
		if err = pw.Write(row); err != nil {
			log.Error().Err(err).Str("Ticker", row.Ticker).Str("Item", row.Item).Str("Period", row.Period).
				Msg("parquet write failed for record")
			return err
		}
	}

	if err = pw.WriteStop(); err != nil {
		log.Error().Err(err).Msg("parquet write failed")
		return err
	}

	log.Info().Int("NumRecords", len(rows)).Str("FileName", fn).Msg("parquet write finished")
	return nil
}

func WriteCSV(rows []*Row, w io.Writer) error {
	if err := gocsv.Marshal(rows, w); err != nil {
		log.Error().Err(err).Msg("csv write failed")
		return err
	}
	return nil
}
